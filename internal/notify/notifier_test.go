package notify

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/internal/models"
)

type stubPush struct {
	errs  []error
	calls int
}

func (p *stubPush) Send(ctx context.Context, token string, msg PushMessage) error {
	defer func() { p.calls++ }()
	if p.calls < len(p.errs) {
		return p.errs[p.calls]
	}
	return nil
}

type stubSMS struct {
	enabled bool
	err     error
	calls   int
	phone   string
	text    string
	ctxErr  error
}

func (s *stubSMS) Enabled() bool { return s.enabled }

func (s *stubSMS) Send(ctx context.Context, phone, text string) error {
	s.calls++
	s.phone = phone
	s.text = text
	s.ctxErr = ctx.Err()
	return s.err
}

func testEvent() Event {
	return Event{
		Kind:        KindStatusChanged,
		OrderNumber: "FC-20260801-AB12CD",
		Status:      models.StatusOutForDelivery,
		Recipient: Recipient{
			Name:      "Asha",
			Phone:     "+254700000001",
			PushToken: "device-token-1",
		},
		TrackingURL: "https://freshcart.example/track/FC-20260801-AB12CD",
	}
}

// noSleep records requested backoff durations without sleeping.
func noSleep(slept *[]time.Duration) func(ctx context.Context, d time.Duration) bool {
	return func(ctx context.Context, d time.Duration) bool {
		*slept = append(*slept, d)
		return true
	}
}

func TestNotifyPushSucceedsFirstAttempt(t *testing.T) {
	push := &stubPush{}
	sms := &stubSMS{enabled: true}
	n := NewNotifier(push, sms, nil)

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 1, push.calls)
	require.Zero(t, sms.calls)
}

func TestNotifyRetriesTransientPushFailures(t *testing.T) {
	transient := &PushError{StatusCode: http.StatusServiceUnavailable, Message: "unavailable"}
	push := &stubPush{errs: []error{transient, transient}}
	sms := &stubSMS{enabled: true}
	var slept []time.Duration
	n := NewNotifier(push, sms, nil, WithBackoff(time.Second, noSleep(&slept)))

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 3, push.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	require.Zero(t, sms.calls)
}

func TestNotifyFallsBackToSMSAfterExhaustedRetries(t *testing.T) {
	transient := errors.New("connection reset")
	push := &stubPush{errs: []error{transient, transient, transient}}
	sms := &stubSMS{enabled: true}
	var slept []time.Duration
	n := NewNotifier(push, sms, nil, WithBackoff(time.Second, noSleep(&slept)))

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 3, push.calls)
	require.Len(t, slept, 2)
	require.Equal(t, 1, sms.calls)
	require.Equal(t, "+254700000001", sms.phone)
	require.Contains(t, sms.text, "FC-20260801-AB12CD")
	require.Contains(t, sms.text, "out for delivery")
}

func TestNotifyRealBackoffLeavesLiveContextForSMS(t *testing.T) {
	transient := errors.New("connection reset")
	push := &stubPush{errs: []error{transient, transient, transient}}
	sms := &stubSMS{enabled: true}
	// Real sleeps at a short base; the deadline is ample so only attempt
	// exhaustion may end the push phase.
	n := NewNotifier(push, sms, nil, WithBackoff(time.Millisecond, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n.Notify(ctx, testEvent())

	require.Equal(t, 3, push.calls)
	require.Equal(t, 1, sms.calls)
	require.NoError(t, sms.ctxErr)
}

func TestNotifyInvalidTokenSkipsRetries(t *testing.T) {
	push := &stubPush{errs: []error{
		&PushError{StatusCode: http.StatusOK, Code: "NotRegistered"},
	}}
	sms := &stubSMS{enabled: true}
	n := NewNotifier(push, sms, nil)

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 1, push.calls)
	require.Equal(t, 1, sms.calls)
}

func TestNotifyRateLimitIsRetried(t *testing.T) {
	push := &stubPush{errs: []error{
		&PushError{StatusCode: http.StatusTooManyRequests, Message: "throttled"},
	}}
	sms := &stubSMS{enabled: true}
	var slept []time.Duration
	n := NewNotifier(push, sms, nil, WithBackoff(time.Second, noSleep(&slept)))

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 2, push.calls)
	require.Zero(t, sms.calls)
}

func TestNotifyNoTokenGoesStraightToSMS(t *testing.T) {
	push := &stubPush{}
	sms := &stubSMS{enabled: true}
	n := NewNotifier(push, sms, nil)

	ev := testEvent()
	ev.Recipient.PushToken = ""
	n.Notify(context.Background(), ev)

	require.Zero(t, push.calls)
	require.Equal(t, 1, sms.calls)
}

func TestNotifyDisabledSMSDegradesToLogging(t *testing.T) {
	push := &stubPush{errs: []error{
		&PushError{StatusCode: http.StatusBadRequest, Message: "bad payload"},
	}}
	sms := &stubSMS{enabled: false}
	n := NewNotifier(push, sms, nil)

	// Must not panic or error; the cascade ends in a log line.
	n.Notify(context.Background(), testEvent())

	require.Equal(t, 1, push.calls)
	require.Zero(t, sms.calls)
}

func TestNotifySMSErrorIsSwallowed(t *testing.T) {
	push := &stubPush{errs: []error{
		&PushError{StatusCode: http.StatusNotFound, Code: "InvalidRegistration"},
	}}
	sms := &stubSMS{enabled: true, err: errors.New("provider down")}
	n := NewNotifier(push, sms, nil)

	n.Notify(context.Background(), testEvent())

	require.Equal(t, 1, sms.calls)
}

func TestSMSTextForAssignment(t *testing.T) {
	ev := Event{
		Kind:         KindOrderAssigned,
		OrderNumber:  "FC-20260801-AB12CD",
		ContactName:  "Asha",
		ContactPhone: "+254700000001",
	}
	require.Contains(t, ev.smsText(), "deliver to Asha")

	// Missing contact details degrade to the generic template.
	generic := Event{
		Kind:        KindOrderAssigned,
		OrderNumber: "FC-20260801-AB12CD",
		TrackingURL: "https://freshcart.example/track/FC-20260801-AB12CD",
	}
	require.Contains(t, generic.smsText(), "Track: https://freshcart.example/track/FC-20260801-AB12CD")
}

func TestResolveToken(t *testing.T) {
	primary := "tok-1"
	empty := ""
	require.Equal(t, "tok-1", ResolveToken(&empty, &primary))
	require.Equal(t, "", ResolveToken(nil, &empty))
}

func TestIsNonRetryable(t *testing.T) {
	require.True(t, IsNonRetryable(&PushError{Code: "NotRegistered"}))
	require.True(t, IsNonRetryable(&PushError{Code: "MismatchSenderId"}))
	require.True(t, IsNonRetryable(&PushError{StatusCode: http.StatusUnauthorized}))
	require.False(t, IsNonRetryable(&PushError{StatusCode: http.StatusTooManyRequests}))
	require.False(t, IsNonRetryable(&PushError{StatusCode: http.StatusBadGateway}))
	require.False(t, IsNonRetryable(errors.New("dial timeout")))
}
