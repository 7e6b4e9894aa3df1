package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/models"
)

// Client is the delivery app's API client. Mutating calls that fail due to
// missing connectivity are captured by the offline queue and replayed later
// through the same backend validation path.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	queue   *Queue
	net     NetworkStatus
}

// NewClient creates a courier API client over an existing queue.
func NewClient(cfg config.CourierConfig, queue *Queue, net NetworkStatus) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		queue:   queue,
		net:     net,
	}
}

// Queue exposes the underlying offline queue.
func (c *Client) Queue() *Queue {
	return c.queue
}

type statusUpdateBody struct {
	Status      models.OrderStatus  `json:"status"`
	PaymentType *models.PaymentType `json:"payment_type,omitempty"`
}

// UpdateStatus requests a status transition for an order. When the device is
// offline (or the request fails on the network) the call is queued instead of
// lost, and the method reports that via the queued return value.
func (c *Client) UpdateStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, paymentType *models.PaymentType) (queued bool, err error) {
	body, err := json.Marshal(statusUpdateBody{Status: status, PaymentType: paymentType})
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal status update")
	}

	req := QueuedRequest{
		Method:    http.MethodPost,
		Path:      fmt.Sprintf("/api/orders/%s/status", orderID),
		Body:      body,
		AuthToken: c.token,
	}

	if !c.net.Online() {
		return true, c.queue.Enqueue(req)
	}

	if err := c.do(ctx, req); err != nil {
		if IsPermanent(err) {
			return false, err
		}
		// Network-level failure: capture for replay.
		log.Warn().Err(err).Str("path", req.Path).Msg("Request failed, queueing for replay")
		return true, c.queue.Enqueue(req)
	}
	return false, nil
}

// Do implements Sender so the queue replays through the same transport.
func (c *Client) Do(ctx context.Context, req QueuedRequest) error {
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req QueuedRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	token := req.AuthToken
	if token == "" {
		token = c.token
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &PermanentError{Status: resp.StatusCode, Message: string(msg)}
	}
	return errors.Errorf("server returned %s", resp.Status)
}

// httpProbe checks connectivity by hitting the backend health endpoint,
// caching the result briefly to avoid hammering it.
type httpProbe struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	checked time.Time
	online  bool
	ttl     time.Duration
}

// NewHTTPProbe creates a NetworkStatus backed by the backend health endpoint.
func NewHTTPProbe(baseURL string) NetworkStatus {
	return &httpProbe{
		url:    strings.TrimRight(baseURL, "/") + "/health",
		client: &http.Client{Timeout: 2 * time.Second},
		ttl:    5 * time.Second,
	}
}

func (p *httpProbe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checked) < p.ttl {
		return p.online
	}

	resp, err := p.client.Get(p.url)
	if err == nil {
		resp.Body.Close()
	}
	p.online = err == nil && resp.StatusCode < 500
	p.checked = time.Now()
	return p.online
}
