package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// PushMessage is the payload delivered to a device.
type PushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushSender delivers a push notification to a single registration token.
type PushSender interface {
	Send(ctx context.Context, token string, msg PushMessage) error
}

// PushError carries enough detail for the cascade to decide whether a failed
// attempt is worth retrying.
type PushError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push delivery failed: status=%d code=%s %s", e.StatusCode, e.Code, e.Message)
}

// Provider error codes that mean the token will never work again.
const (
	codeNotRegistered       = "NotRegistered"
	codeInvalidRegistration = "InvalidRegistration"
	codeMismatchSenderID    = "MismatchSenderId"
)

// IsNonRetryable reports whether a push failure should short-circuit the retry
// loop. Permanently invalid registrations and client errors (other than 429)
// fall through to SMS immediately; timeouts, 5xx and 429 are retried.
func IsNonRetryable(err error) bool {
	var pe *PushError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case codeNotRegistered, codeInvalidRegistration, codeMismatchSenderID:
		return true
	}
	if pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != http.StatusTooManyRequests {
		return true
	}
	return false
}

// FCMConfig configures the FCM HTTP push sender.
type FCMConfig struct {
	URL       string
	ServerKey string
	Timeout   time.Duration
}

// fcmSender sends push notifications through the FCM legacy HTTP endpoint.
type fcmSender struct {
	cfg    FCMConfig
	client *http.Client
}

// NewFCMSender creates a push sender backed by FCM's HTTP API.
func NewFCMSender(cfg FCMConfig) PushSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &fcmSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification PushMessage       `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (s *fcmSender) Send(ctx context.Context, token string, msg PushMessage) error {
	body, err := json.Marshal(fcmRequest{To: token, Notification: msg, Data: msg.Data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal push payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.cfg.ServerKey)

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors and timeouts are retryable.
		return errors.Wrap(err, "push request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &PushError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.Wrap(err, "failed to decode push response")
	}
	if out.Failure > 0 && len(out.Results) > 0 && out.Results[0].Error != "" {
		return &PushError{StatusCode: resp.StatusCode, Code: out.Results[0].Error}
	}
	return nil
}
