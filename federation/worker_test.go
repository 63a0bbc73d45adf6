package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// recordingStore remembers reschedules so tests can tell a postponed item from a dropped one.
type recordingStore struct {
	*db.DB
	mu       sync.Mutex
	attempts map[uuid.UUID]int
	deleted  map[uuid.UUID]bool
}

func (s *recordingStore) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error {
	s.mu.Lock()
	s.attempts[id] = attempts
	s.mu.Unlock()
	return s.DB.UpdateDeliveryAttempt(ctx, id, attempts, nextRetry)
}

func (s *recordingStore) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	s.deleted[id] = true
	s.mu.Unlock()
	return s.DB.DeleteDelivery(ctx, id)
}

type workerFixture struct {
	worker *Worker
	store  *recordingStore
	sender *domain.User
	hits   atomic.Int32
	item   uuid.UUID
}

func newWorkerFixture(t *testing.T, status int) *workerFixture {
	t.Helper()
	database, bob := setupStore(t)
	f := &workerFixture{
		store:  &recordingStore{DB: database, attempts: map[uuid.UUID]int{}, deleted: map[uuid.UUID]bool{}},
		sender: bob,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	conf := &util.AppConfig{}
	conf.Conf.DeliveryInterval = 1
	client := NewClient(f.store, zerolog.Nop())
	f.worker = NewWorker(f.store, client, conf, zerolog.Nop())

	ctx := context.Background()
	if err := client.Deliver(ctx, bob, map[string]string{"type": "Like"}, []string{server.URL + "/inbox"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	items, err := database.ReadPendingDeliveries(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("Expected one queued item, got %d (%v)", len(items), err)
	}
	f.item = items[0].Id
	return f
}

func (f *workerFixture) pending(t *testing.T) int {
	t.Helper()
	items, err := f.store.ReadPendingDeliveries(context.Background(), 10)
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}
	return len(items)
}

func TestWorkerDeliversAndDequeues(t *testing.T) {
	f := newWorkerFixture(t, http.StatusAccepted)

	n, err := f.worker.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if n != 1 || f.hits.Load() != 1 {
		t.Fatalf("Expected one attempt, got %d tried and %d requests", n, f.hits.Load())
	}
	if !f.store.deleted[f.item] {
		t.Error("Expected the delivered item to be removed")
	}
	if f.pending(t) != 0 {
		t.Error("Expected empty queue")
	}
}

func TestWorkerBacksOffOnServerError(t *testing.T) {
	f := newWorkerFixture(t, http.StatusServiceUnavailable)
	ctx := context.Background()

	if _, err := f.worker.ProcessQueue(ctx); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if f.store.attempts[f.item] != 1 {
		t.Errorf("Expected attempts=1, got %d", f.store.attempts[f.item])
	}
	if f.store.deleted[f.item] {
		t.Error("Expected the item to stay queued")
	}
	if n, _ := f.worker.ProcessQueue(ctx); n != 0 || f.hits.Load() != 1 {
		t.Errorf("Expected no retry before the backoff, got %d tried", n)
	}
}

func TestWorkerDropsPermanentFailure(t *testing.T) {
	f := newWorkerFixture(t, http.StatusGone)

	if _, err := f.worker.ProcessQueue(context.Background()); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if !f.store.deleted[f.item] {
		t.Error("Expected a 410 to drop the delivery")
	}
	if _, ok := f.store.attempts[f.item]; ok {
		t.Error("Expected no reschedule after a permanent failure")
	}
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	f := newWorkerFixture(t, http.StatusBadGateway)
	ctx := context.Background()

	if err := f.store.DB.UpdateDeliveryAttempt(ctx, f.item, maxAttempts-1, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Failed to age item: %v", err)
	}
	if _, err := f.worker.ProcessQueue(ctx); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if !f.store.deleted[f.item] {
		t.Error("Expected the item to be dropped at the attempt limit")
	}
}

// senderGone answers every user lookup with ErrNotFound.
type senderGone struct {
	*recordingStore
}

func (senderGone) UserById(ctx context.Context, id string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func TestWorkerDropsDeliveryOfDeletedSender(t *testing.T) {
	f := newWorkerFixture(t, http.StatusAccepted)
	store := senderGone{f.store}
	conf := &util.AppConfig{}
	conf.Conf.DeliveryInterval = 1
	w := NewWorker(store, NewClient(store, zerolog.Nop()), conf, zerolog.Nop())

	if _, err := w.ProcessQueue(context.Background()); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if !f.store.deleted[f.item] {
		t.Error("Expected delivery of an unknown sender to be dropped")
	}
	if f.hits.Load() != 0 {
		t.Errorf("Expected no request, got %d", f.hits.Load())
	}
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	f := newWorkerFixture(t, http.StatusAccepted)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for f.hits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for the worker to deliver")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from Run, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Worker did not stop")
	}
}
