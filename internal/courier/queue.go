package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MaxRetries is how many replay attempts a queued request gets before it is
// permanently dropped. Data loss past this bound is accepted to avoid
// unbounded queue growth.
const MaxRetries = 3

// NetworkStatus reports whether the device currently has connectivity.
type NetworkStatus interface {
	Online() bool
}

// Sender replays one queued request against the backend.
type Sender interface {
	Do(ctx context.Context, req QueuedRequest) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req QueuedRequest) error

func (f SenderFunc) Do(ctx context.Context, req QueuedRequest) error {
	return f(ctx, req)
}

// PermanentError marks a replay failure that will never succeed (the backend
// rejected the request). The entry is dropped without consuming retries;
// validation errors are never retried automatically.
type PermanentError struct {
	Status  int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("request rejected: status=%d %s", e.Status, e.Message)
}

// IsPermanent reports whether a replay failure is a backend rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Queue is the durable offline mutation queue. One Queue is constructed per
// client session with injected storage and network-status dependencies.
type Queue struct {
	store      Store
	net        NetworkStatus
	send       Sender
	maxRetries int

	mu       sync.Mutex
	flushing bool
	subs     []func(pending int)
}

// NewQueue creates a queue over the given store, network probe and sender.
func NewQueue(store Store, net NetworkStatus, send Sender) *Queue {
	return &Queue{
		store:      store,
		net:        net,
		send:       send,
		maxRetries: MaxRetries,
	}
}

// Enqueue appends a request with a fresh id, zero retries and the current
// timestamp, persisting immediately so it survives restarts.
func (q *Queue) Enqueue(req QueuedRequest) error {
	if req.ID == "" {
		req.ID = NewRequestID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.RetryCount = 0

	if err := q.store.Append(req); err != nil {
		return errors.Wrap(err, "failed to persist queued request")
	}
	log.Info().
		Str("id", req.ID).
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("Request queued for replay")
	q.notifySubs()
	return nil
}

// Flush replays all queued requests serially in ascending creation order.
// Concurrent calls collapse into one active pass; a no-op when offline.
// Per-order status ordering depends on the serial, oldest-first replay.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return nil
	}
	q.flushing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	if !q.net.Online() {
		return nil
	}

	entries, err := q.store.All()
	if err != nil {
		return errors.Wrap(err, "failed to load queued requests")
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !q.net.Online() {
			// Going offline pauses the pass until the next online event.
			log.Info().Msg("Went offline during flush, pausing replay")
			return nil
		}

		err := q.send.Do(ctx, entry)
		if err == nil {
			if err := q.store.Remove(entry.ID); err != nil {
				log.Warn().Err(err).Str("id", entry.ID).Msg("Failed to remove replayed request")
			}
			log.Info().Str("id", entry.ID).Str("path", entry.Path).Msg("Queued request replayed")
			q.notifySubs()
			continue
		}

		if IsPermanent(err) {
			log.Warn().Err(err).
				Str("id", entry.ID).
				Str("path", entry.Path).
				Msg("Queued request rejected by backend, dropping")
			if err := q.store.Remove(entry.ID); err != nil {
				log.Warn().Err(err).Str("id", entry.ID).Msg("Failed to remove rejected request")
			}
			q.notifySubs()
			continue
		}

		entry.RetryCount++
		if entry.RetryCount >= q.maxRetries {
			log.Error().Err(err).
				Str("id", entry.ID).
				Str("path", entry.Path).
				Int("retries", entry.RetryCount).
				Msg("Queued request exhausted retries, dropping permanently")
			if err := q.store.Remove(entry.ID); err != nil {
				log.Warn().Err(err).Str("id", entry.ID).Msg("Failed to remove exhausted request")
			}
			q.notifySubs()
			continue
		}

		// Leave it queued for the next flush cycle.
		if err := q.store.Update(entry); err != nil {
			log.Warn().Err(err).Str("id", entry.ID).Msg("Failed to record retry count")
		}
		log.Warn().Err(err).
			Str("id", entry.ID).
			Int("retry_count", entry.RetryCount).
			Msg("Queued request replay failed, will retry next flush")
	}
	return nil
}

// PendingCount reloads the durable store and returns how many requests await
// replay. Reading through the store tolerates multi-process usage.
func (q *Queue) PendingCount() int {
	entries, err := q.store.All()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read queue store")
		return 0
	}
	return len(entries)
}

// PendingRequests returns a snapshot of queued requests in replay order.
func (q *Queue) PendingRequests() ([]QueuedRequest, error) {
	return q.store.All()
}

// Subscribe registers a callback invoked with the pending count whenever the
// queue changes. Used for "N pending" indicators.
func (q *Queue) Subscribe(fn func(pending int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = append(q.subs, fn)
}

func (q *Queue) notifySubs() {
	pending := q.PendingCount()
	q.mu.Lock()
	subs := make([]func(int), len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()
	for _, fn := range subs {
		fn(pending)
	}
}

// RunAutoFlush polls connectivity and flushes whenever the device is online
// with work pending. Failed entries therefore wait at least one poll interval
// before their next attempt. It blocks until the context is cancelled.
func (q *Queue) RunAutoFlush(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if q.net.Online() && q.PendingCount() > 0 {
			if err := q.Flush(ctx); err != nil {
				log.Warn().Err(err).Msg("Auto flush failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
