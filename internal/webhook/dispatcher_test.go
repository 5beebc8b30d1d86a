package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests to prevent nil pointer dereference
	_ = logger.Init(logger.WithLevel("error"))
}

// memoryEventStorage is an in-memory EventStorage enforcing the same
// uniqueness and lease rules as the real implementation.
type memoryEventStorage struct {
	mu     sync.Mutex
	events map[string]*Event
	leases map[string]time.Time
}

func newMemoryEventStorage() *memoryEventStorage {
	return &memoryEventStorage{
		events: make(map[string]*Event),
		leases: make(map[string]time.Time),
	}
}

func (m *memoryEventStorage) CreateEvent(_ context.Context, event Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.TransactionSignature != "" {
		for _, existing := range m.events {
			if existing.TransactionSignature == event.TransactionSignature && existing.EventType == event.EventType {
				return Event{}, ErrEventAlreadyExists
			}
		}
	}

	event.CreatedAt = time.Now().UTC()
	m.events[event.ID] = &event
	return event, nil
}

func (m *memoryEventStorage) ClaimDueEvents(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Event
	for id, event := range m.events {
		if event.Status != EventStatusPending || event.NextAttemptAt.After(now) {
			continue
		}
		if claimedUntil, ok := m.leases[id]; ok && claimedUntil.After(now) {
			continue
		}

		m.leases[id] = now.Add(lease)
		due = append(due, *event)
		if len(due) == limit {
			break
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	return due, nil
}

func (m *memoryEventStorage) MarkDelivered(_ context.Context, id string, attempts int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[id]
	if !ok || event.Status != EventStatusPending {
		return ErrEventNotFound
	}

	event.Status, event.Attempts, event.DeliveredAt, event.LastAttemptAt = EventStatusDelivered, attempts, &at, &at
	delete(m.leases, id)
	return nil
}

func (m *memoryEventStorage) ScheduleRetry(_ context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[id]
	if !ok || event.Status != EventStatusPending {
		return ErrEventNotFound
	}

	now := time.Now().UTC()
	event.Attempts, event.LastError, event.NextAttemptAt, event.LastAttemptAt = attempts, lastError, nextAttemptAt, &now
	delete(m.leases, id)
	return nil
}

func (m *memoryEventStorage) MarkFailed(_ context.Context, id string, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[id]
	if !ok || event.Status != EventStatusPending {
		return ErrEventNotFound
	}

	now := time.Now().UTC()
	event.Status, event.Attempts, event.LastError, event.LastAttemptAt = EventStatusFailed, attempts, lastError, &now
	delete(m.leases, id)
	return nil
}

func (m *memoryEventStorage) ListEventsByWallet(_ context.Context, address string, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, event := range m.events {
		if event.WalletAddress == address {
			events = append(events, *event)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if offset > len(events) {
		offset = len(events)
	}
	events = events[offset:]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *memoryEventStorage) CountEventsByStatus(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	for _, event := range m.events {
		switch event.Status {
		case EventStatusPending:
			stats.Pending++
		case EventStatusDelivered:
			stats.Delivered++
		case EventStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// endpointMap is an EndpointSource backed by a map.
type endpointMap map[string]string

func (e endpointMap) WebhookEndpoint(_ context.Context, address string) (string, error) {
	url, ok := e[address]
	if !ok || url == "" {
		return "", ErrNoWebhookURL
	}
	return url, nil
}

// snapshotMap is a TransactionSource backed by a map.
type snapshotMap map[string]TransactionSnapshot

func (s snapshotMap) GetTransactionSnapshot(_ context.Context, signature string) (TransactionSnapshot, error) {
	return s[signature], nil
}

func testSnapshot(signature string) TransactionSnapshot {
	return TransactionSnapshot{
		Signature:     signature,
		WalletAddress: "wallet-a",
		Type:          "receive",
		Amount:        "10.000000",
		TokenMint:     "mint-1",
		Counterparty:  "wallet-b",
		Status:        "confirmed",
		BlockTime:     time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestService_Enqueue(t *testing.T) {
	ctx := context.Background()

	transition := Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "confirmed"}

	t.Run("creates a pending event with a snapshot payload", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": "https://example.com/hook"}, snapshotMap{"sig-1": testSnapshot("sig-1")})

		event, err := svc.Enqueue(ctx, transition)
		require.NoError(t, err)
		require.NotNil(t, event)

		assert.Equal(t, "transaction.confirmed", event.EventType)
		assert.Equal(t, EventStatusPending, event.Status)

		var body payload
		require.NoError(t, json.Unmarshal(event.Payload, &body))
		assert.Equal(t, "transaction.confirmed", body.Event)

		data, ok := body.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "sig-1", data["signature"])
		assert.Equal(t, "10.000000", data["amount"])
	})

	t.Run("statuses outside the trigger set are ignored", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": "https://example.com/hook"}, snapshotMap{})

		event, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "pending"})
		require.NoError(t, err)
		assert.Nil(t, event)
		assert.Empty(t, storage.events)
	})

	t.Run("pending joins the trigger set when configured", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": "https://example.com/hook"},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithTriggerStatuses("pending", "confirmed", "failed"),
		)

		event, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "pending"})
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "transaction.pending", event.EventType)
	})

	t.Run("wallets without a webhook URL are skipped silently", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{}, snapshotMap{})

		event, err := svc.Enqueue(ctx, transition)
		require.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("replaying the same transition enqueues at most once", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": "https://example.com/hook"}, snapshotMap{"sig-1": testSnapshot("sig-1")})

		first, err := svc.Enqueue(ctx, transition)
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := svc.Enqueue(ctx, transition)
		require.NoError(t, err)
		assert.Nil(t, second)
		assert.Len(t, storage.events, 1)
	})
}

func TestService_deliver(t *testing.T) {
	ctx := context.Background()

	enqueue := func(t *testing.T, svc Service, storage *memoryEventStorage) Event {
		t.Helper()
		event, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "confirmed"})
		require.NoError(t, err)
		require.NotNil(t, event)
		return *event
	}

	t.Run("2xx marks the event delivered and signs the request", func(t *testing.T) {
		var (
			gotSignature   string
			gotContentType string
			gotBody        payload
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSignature = r.Header.Get("X-Webhook-Signature")
			gotContentType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": server.URL},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithSigningSecret("top-secret"),
		)

		event := enqueue(t, svc, storage)
		require.NoError(t, svc.deliver(ctx, event))

		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusDelivered, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
		require.NotNil(t, stored.DeliveredAt)

		assert.Equal(t, "application/json", gotContentType)
		assert.Equal(t, signPayload("top-secret", event.Payload), gotSignature)
		assert.Equal(t, "transaction.confirmed", gotBody.Event)
	})

	t.Run("5xx schedules a retry with backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": server.URL},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithBackoff(func(int) time.Duration { return time.Minute }),
		)

		event := enqueue(t, svc, storage)
		before := time.Now().UTC()
		require.NoError(t, svc.deliver(ctx, event))

		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusPending, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
		assert.Contains(t, stored.LastError, "500")
		assert.True(t, stored.NextAttemptAt.After(before.Add(50*time.Second)), "retry should be pushed into the future")
	})

	t.Run("429 is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": server.URL}, snapshotMap{"sig-1": testSnapshot("sig-1")})

		event := enqueue(t, svc, storage)
		require.NoError(t, svc.deliver(ctx, event))
		assert.Equal(t, EventStatusPending, storage.events[event.ID].Status)
	})

	t.Run("non-429 4xx fails permanently without burning retries", func(t *testing.T) {
		var requests int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests++
			w.WriteHeader(http.StatusGone)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": server.URL}, snapshotMap{"sig-1": testSnapshot("sig-1")})

		event := enqueue(t, svc, storage)
		require.NoError(t, svc.deliver(ctx, event))

		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
		assert.Contains(t, stored.LastError, "410")
		assert.Equal(t, 1, requests)
	})

	t.Run("attempts exhaust into a permanent failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": server.URL},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithMaxAttempts(2),
			WithBackoff(func(int) time.Duration { return 0 }),
		)

		event := enqueue(t, svc, storage)
		require.NoError(t, svc.deliver(ctx, *storage.events[event.ID]))
		assert.Equal(t, EventStatusPending, storage.events[event.ID].Status)

		require.NoError(t, svc.deliver(ctx, *storage.events[event.ID]))
		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusFailed, stored.Status)
		assert.Equal(t, 2, stored.Attempts)
	})

	t.Run("canceled attempt is treated as transient, never as delivered", func(t *testing.T) {
		started := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-r.Context().Done()
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": server.URL},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithBackoff(func(int) time.Duration { return time.Minute }),
		)

		event := enqueue(t, svc, storage)

		deliverCtx, cancel := context.WithCancel(ctx)
		go func() {
			<-started
			cancel()
		}()

		require.NoError(t, svc.deliver(deliverCtx, event))

		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusPending, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
	})

	t.Run("endpoint removed after enqueue fails the event", func(t *testing.T) {
		endpoints := endpointMap{"wallet-a": "https://example.com/hook"}
		storage := newMemoryEventStorage()
		svc := New(storage, endpoints, snapshotMap{"sig-1": testSnapshot("sig-1")})

		event := enqueue(t, svc, storage)

		delete(endpoints, "wallet-a")
		require.NoError(t, svc.deliver(ctx, event))
		assert.Equal(t, EventStatusFailed, storage.events[event.ID].Status)
	})
}

func TestService_runPass(t *testing.T) {
	ctx := context.Background()

	t.Run("claims due events and skips future ones", func(t *testing.T) {
		var delivered []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body payload
			_ = json.NewDecoder(r.Body).Decode(&body)
			delivered = append(delivered, body.Event)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": server.URL}, snapshotMap{
			"sig-1": testSnapshot("sig-1"),
			"sig-2": testSnapshot("sig-2"),
		})

		due, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "confirmed"})
		require.NoError(t, err)

		future, err := svc.Enqueue(ctx, Transition{Signature: "sig-2", WalletAddress: "wallet-a", NewStatus: "failed"})
		require.NoError(t, err)
		storage.events[future.ID].NextAttemptAt = time.Now().UTC().Add(time.Hour)

		svc.runPass(ctx)

		assert.Equal(t, EventStatusDelivered, storage.events[due.ID].Status)
		assert.Equal(t, EventStatusPending, storage.events[future.ID].Status)
		assert.Equal(t, []string{"transaction.confirmed"}, delivered)
	})

	t.Run("transient failures are retried until the endpoint recovers", func(t *testing.T) {
		var requests int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests++
			if requests <= 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage,
			endpointMap{"wallet-a": server.URL},
			snapshotMap{"sig-1": testSnapshot("sig-1")},
			WithMaxAttempts(5),
			WithBackoff(func(int) time.Duration { return 0 }),
		)

		event, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "confirmed"})
		require.NoError(t, err)
		require.NotNil(t, event)

		for range 4 {
			svc.runPass(ctx)
		}

		stored := storage.events[event.ID]
		assert.Equal(t, EventStatusDelivered, stored.Status)
		assert.Equal(t, 4, stored.Attempts)
		require.NotNil(t, stored.DeliveredAt)
		deliveredAt := *stored.DeliveredAt

		// A delivered event is final: further passes never re-send it.
		svc.runPass(ctx)
		assert.Equal(t, 4, requests)
		assert.Equal(t, deliveredAt, *storage.events[event.ID].DeliveredAt)
	})

	t.Run("a leased event is not claimed twice within its lease", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": "https://example.com/hook"}, snapshotMap{"sig-1": testSnapshot("sig-1")})

		_, err := svc.Enqueue(ctx, Transition{Signature: "sig-1", WalletAddress: "wallet-a", NewStatus: "confirmed"})
		require.NoError(t, err)

		now := time.Now().UTC()
		first, err := storage.ClaimDueEvents(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		second, err := storage.ClaimDueEvents(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, second)

		expired, err := storage.ClaimDueEvents(ctx, now.Add(2*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})
}

func TestService_SendTest(t *testing.T) {
	ctx := context.Background()

	t.Run("successful test delivery", func(t *testing.T) {
		var gotBody payload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": server.URL}, snapshotMap{})

		event, err := svc.SendTest(ctx, "wallet-a")
		require.NoError(t, err)
		assert.Equal(t, EventStatusDelivered, event.Status)
		assert.Equal(t, 1, event.Attempts)
		assert.Equal(t, "test", gotBody.Event)
	})

	t.Run("failed test delivery returns both the event and the error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{"wallet-a": server.URL}, snapshotMap{})

		event, err := svc.SendTest(ctx, "wallet-a")
		require.Error(t, err)
		assert.Equal(t, EventStatusFailed, event.Status)
		assert.Contains(t, event.LastError, "500")
	})

	t.Run("wallet without a webhook URL", func(t *testing.T) {
		storage := newMemoryEventStorage()
		svc := New(storage, endpointMap{}, snapshotMap{})

		_, err := svc.SendTest(ctx, "wallet-a")
		assert.ErrorIs(t, err, ErrNoWebhookURL)
	})
}

func TestService_Lifecycle(t *testing.T) {
	storage := newMemoryEventStorage()
	svc := New(storage, endpointMap{}, snapshotMap{}, WithDispatchInterval(time.Hour))

	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), ErrServiceAlreadyStarted)

	svc.Close()
	require.NoError(t, svc.Start(context.Background()))
	svc.Close()
}
