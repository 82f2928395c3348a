package usage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/messagequeue"
)

type usageStore struct {
	mu      sync.Mutex
	updates []tenant.UsageUpdate
	ids     []string
	err     error
}

func (s *usageStore) UpdateUsage(_ context.Context, id string, u tenant.UsageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	s.updates = append(s.updates, u)
	return nil
}

func (s *usageStore) FindByAPIKey(context.Context, string) (*tenant.Tenant, error) { return nil, nil }
func (s *usageStore) FindByHost(context.Context, string, string) (*tenant.Tenant, error) {
	return nil, nil
}
func (s *usageStore) FindByID(context.Context, string) (*tenant.Tenant, error)    { return nil, nil }
func (s *usageStore) Create(context.Context, *tenant.Tenant) error                { return nil }
func (s *usageStore) UpdateStatus(context.Context, string, tenant.Status) error   { return nil }
func (s *usageStore) UpdateLimits(context.Context, string, tenant.Limits) error   { return nil }
func (s *usageStore) List(context.Context) ([]tenant.Tenant, error)               { return nil, nil }
func (s *usageStore) CountByStatus(context.Context) (map[tenant.Status]int, error) {
	return nil, nil
}

type captureQueue struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (q *captureQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subjects = append(q.subjects, subject)
	q.payloads = append(q.payloads, data)
	return nil
}

func (q *captureQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *captureQueue) Drain() error      { return nil }
func (q *captureQueue) Close() error      { return nil }
func (q *captureQueue) IsConnected() bool { return true }

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRecorderFlushesToDirectory(t *testing.T) {
	store := &usageStore{}
	r := New(store, nil, discard(), 8)

	at := time.Now()
	r.Record("t1", 42, at)
	r.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("got %d usage updates, want 1", len(store.updates))
	}
	if store.ids[0] != "t1" {
		t.Errorf("tenant id = %q, want t1", store.ids[0])
	}
	if store.updates[0].APIRequestsThisHour != 42 {
		t.Errorf("APIRequestsThisHour = %d, want 42", store.updates[0].APIRequestsThisHour)
	}
}

func TestRecorderPublishesEvent(t *testing.T) {
	store := &usageStore{}
	queue := &captureQueue{}
	r := New(store, queue, discard(), 8)

	r.Record("t1", 7, time.Now())
	r.Close()

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.subjects) != 1 || queue.subjects[0] != messagequeue.SubjectTenantUsage {
		t.Fatalf("published to %v, want [%s]", queue.subjects, messagequeue.SubjectTenantUsage)
	}
	var p messagequeue.UsagePayload
	if err := json.Unmarshal(queue.payloads[0], &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if p.TenantID != "t1" || p.RequestsThisHour != 7 {
		t.Errorf("payload = %+v, want tenant t1 count 7", p)
	}
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	store := &usageStore{err: errors.New("connection reset")}
	r := New(store, nil, discard(), 8)

	r.Record("t1", 1, time.Now())
	r.Close()
}

func TestRecorderDropsWhenFull(t *testing.T) {
	store := &usageStore{}
	r := &Recorder{
		dir: store,
		log: discard(),
		ch:  make(chan snapshot, 1),
	}

	r.Record("t1", 1, time.Now())
	r.Record("t1", 2, time.Now())

	r.wg.Add(1)
	go r.run()
	r.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("got %d updates, want 1: second observation should be dropped", len(store.updates))
	}
}
