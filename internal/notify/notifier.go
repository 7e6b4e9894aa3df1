// Package notify implements the best-effort notification cascade: push with
// bounded retries, falling back to SMS, itself degrading to logging. The
// cascade never fails its caller; order workflow must not block on it.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/freshcart/internal/metrics"
	"example.com/freshcart/internal/models"
)

// EventKind classifies what happened to an order.
type EventKind string

// Notification event kinds.
const (
	KindOrderAssigned EventKind = "order_assigned"
	KindStatusChanged EventKind = "status_changed"
)

// Recipient is the party being informed.
type Recipient struct {
	Name      string
	Phone     string
	PushToken string
}

// ResolveToken normalizes a push token from the possible storage locations
// into one canonical value before it reaches the cascade.
func ResolveToken(candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return ""
}

// Event describes one notification-worthy change. ContactName and
// ContactPhone are the counterpart's details woven into the message body; if
// they could not be resolved the message degrades to a generic template.
type Event struct {
	Kind         EventKind
	OrderNumber  string
	Status       models.OrderStatus
	Recipient    Recipient
	ContactName  string
	ContactPhone string
	TrackingURL  string
}

// Notifier runs the push-then-SMS-then-log cascade.
type Notifier struct {
	push        PushSender
	sms         SmsSender
	metrics     *metrics.Metrics
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBackoff overrides the retry schedule. Used by tests to avoid real sleeps.
func WithBackoff(base time.Duration, sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(n *Notifier) {
		n.baseBackoff = base
		if sleep != nil {
			n.sleep = sleep
		}
	}
}

// NewNotifier creates a notifier. The metrics collector may be nil.
func NewNotifier(push PushSender, sms SmsSender, m *metrics.Metrics, opts ...Option) *Notifier {
	n := &Notifier{
		push:        push,
		sms:         sms,
		metrics:     m,
		maxAttempts: 3,
		baseBackoff: time.Second,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Notify runs the full cascade for a single event. It never returns an error:
// delivery failures are logged and swallowed so order transitions are never
// blocked by notification infrastructure.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if n.tryPush(ctx, ev) {
		n.count("notify.push_delivered")
		return
	}
	n.trySMS(ctx, ev)
}

// tryPush attempts push delivery with bounded retries and exponential backoff.
// Returns true on success; false means the cascade should fall through to SMS.
func (n *Notifier) tryPush(ctx context.Context, ev Event) bool {
	token := ev.Recipient.PushToken
	if token == "" || n.push == nil {
		return false
	}

	title, body := ev.pushContent()
	msg := PushMessage{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"order_number": ev.OrderNumber,
			"status":       ev.Status.String(),
		},
	}

	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		err := n.push.Send(ctx, token, msg)
		if err == nil {
			return true
		}

		n.count("notify.push_attempt_failed")
		if IsNonRetryable(err) {
			log.Warn().Err(err).
				Str("order_number", ev.OrderNumber).
				Msg("Push delivery permanently failed, falling back to SMS")
			return false
		}

		log.Warn().Err(err).
			Str("order_number", ev.OrderNumber).
			Int("attempt", attempt+1).
			Msg("Push delivery failed")

		if attempt < n.maxAttempts-1 {
			if !n.sleep(ctx, n.baseBackoff<<uint(attempt)) {
				return false
			}
		}
	}
	return false
}

// trySMS sends the fallback text, degrading to logging when the provider is
// disabled. Provider errors are logged and swallowed.
func (n *Notifier) trySMS(ctx context.Context, ev Event) {
	text := ev.smsText()

	if ev.Recipient.Phone == "" {
		n.count("notify.logged_only")
		log.Info().
			Str("order_number", ev.OrderNumber).
			Str("message", text).
			Msg("No recipient phone available, notification logged only")
		return
	}

	if n.sms == nil || !n.sms.Enabled() {
		n.count("notify.logged_only")
		log.Info().
			Str("order_number", ev.OrderNumber).
			Str("phone", ev.Recipient.Phone).
			Str("message", text).
			Msg("SMS provider disabled, notification logged only")
		return
	}

	if err := n.sms.Send(ctx, ev.Recipient.Phone, text); err != nil {
		n.count("notify.sms_failed")
		log.Error().Err(err).
			Str("order_number", ev.OrderNumber).
			Str("phone", ev.Recipient.Phone).
			Msg("SMS delivery failed")
		return
	}
	n.count("notify.sms_delivered")
}

func (n *Notifier) count(name string) {
	if n.metrics != nil {
		n.metrics.IncrementCounter(name)
	}
}

// pushContent builds the push notification title and body for the event.
func (ev Event) pushContent() (string, string) {
	switch ev.Kind {
	case KindOrderAssigned:
		return "New delivery assigned", fmt.Sprintf("Order %s has been assigned to you.", ev.OrderNumber)
	default:
		return "Order update", fmt.Sprintf("Order %s is now %s.", ev.OrderNumber, statusPhrase(ev.Status))
	}
}

// smsText builds the fallback SMS body. When contact details could not be
// resolved the message degrades to a generic tracking template.
func (ev Event) smsText() string {
	switch ev.Kind {
	case KindOrderAssigned:
		if ev.ContactName == "" && ev.ContactPhone == "" {
			return fmt.Sprintf("New order %s assigned to you. Track: %s", ev.OrderNumber, ev.TrackingURL)
		}
		return fmt.Sprintf("Order %s assigned: deliver to %s. Call: %s", ev.OrderNumber, ev.ContactName, ev.ContactPhone)
	default:
		return fmt.Sprintf("Order %s is now %s. Track: %s", ev.OrderNumber, statusPhrase(ev.Status), ev.TrackingURL)
	}
}

func statusPhrase(s models.OrderStatus) string {
	switch s {
	case models.StatusOutForDelivery:
		return "out for delivery"
	default:
		return s.String()
	}
}
