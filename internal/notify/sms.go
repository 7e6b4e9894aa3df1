package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SmsSender delivers a text message to a phone number. Implementations may be
// globally disabled; callers must check Enabled before attempting delivery.
type SmsSender interface {
	Enabled() bool
	Send(ctx context.Context, phone, text string) error
}

// SMSConfig configures the HTTP SMS sender.
type SMSConfig struct {
	Enabled    bool
	URL        string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

// smsSender sends texts through a Twilio-style messages endpoint.
type smsSender struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMSSender creates an SMS sender. When the provider is unconfigured the
// sender reports itself disabled and the cascade degrades to logging.
func NewSMSSender(cfg SMSConfig) SmsSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &smsSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *smsSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.URL != "" && s.cfg.AccountSID != ""
}

func (s *smsSender) Send(ctx context.Context, phone, text string) error {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", s.cfg.From)
	form.Set("Body", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sms request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("sms provider returned %s", resp.Status)
	}
	return nil
}
