package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/config"
	"example.com/freshcart/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler, online bool) (*Client, *stubNet) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	net := &stubNet{online: online}
	var client *Client
	queue := NewQueue(NewMemoryStore(), net, SenderFunc(func(ctx context.Context, req QueuedRequest) error {
		return client.Do(ctx, req)
	}))
	client = NewClient(config.CourierConfig{
		BaseURL: srv.URL,
		Token:   "agent-token",
	}, queue, net)
	return client, net
}

func TestUpdateStatusSendsWhenOnline(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotAuth string
	var gotBody statusUpdateBody

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient(t, handler, true)

	orderID := uuid.New()
	cod := models.PaymentCOD
	queued, err := client.UpdateStatus(context.Background(), orderID, models.StatusDelivered, &cod)

	require.NoError(t, err)
	require.False(t, queued)
	require.Equal(t, "/api/orders/"+orderID.String()+"/status", gotPath)
	require.Equal(t, "Bearer agent-token", gotAuth)
	require.Equal(t, models.StatusDelivered, gotBody.Status)
	require.NotNil(t, gotBody.PaymentType)
	require.Equal(t, models.PaymentCOD, *gotBody.PaymentType)
	require.Zero(t, client.Queue().PendingCount())
}

func TestUpdateStatusQueuesWhenOffline(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected while offline")
	})

	client, _ := newTestClient(t, handler, false)

	queued, err := client.UpdateStatus(context.Background(), uuid.New(), models.StatusPicked, nil)

	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, 1, client.Queue().PendingCount())
}

func TestUpdateStatusSurfacesBackendRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid transition"}`, http.StatusUnprocessableEntity)
	})

	client, _ := newTestClient(t, handler, true)

	queued, err := client.UpdateStatus(context.Background(), uuid.New(), models.StatusDelivered, nil)

	// A validation failure is reported, never queued for replay.
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.False(t, queued)
	require.Zero(t, client.Queue().PendingCount())
}

func TestUpdateStatusQueuesOnServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, _ := newTestClient(t, handler, true)

	queued, err := client.UpdateStatus(context.Background(), uuid.New(), models.StatusPicked, nil)

	require.NoError(t, err)
	require.True(t, queued)
	require.Equal(t, 1, client.Queue().PendingCount())
}

func TestQueuedUpdateReplaysThroughFlush(t *testing.T) {
	var mu sync.Mutex
	var received []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	client, net := newTestClient(t, handler, false)

	orderID := uuid.New()
	queued, err := client.UpdateStatus(context.Background(), orderID, models.StatusPicked, nil)
	require.NoError(t, err)
	require.True(t, queued)

	net.set(true)
	require.NoError(t, client.Queue().Flush(context.Background()))

	require.Equal(t, []string{"/api/orders/" + orderID.String() + "/status"}, received)
	require.Zero(t, client.Queue().PendingCount())
}
