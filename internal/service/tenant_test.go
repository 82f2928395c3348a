package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pagebase/pagebase/internal/domain"
	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/messagequeue"
)

type mockStore struct {
	mu       sync.Mutex
	created  []*tenant.Tenant
	statuses map[string]tenant.Status
	limits   map[string]tenant.Limits
	counts   map[tenant.Status]int

	createErr error
	statusErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		statuses: map[string]tenant.Status{},
		limits:   map[string]tenant.Limits{},
	}
}

func (m *mockStore) Create(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, t)
	return nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id string, s tenant.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	m.statuses[id] = s
	return nil
}

func (m *mockStore) UpdateLimits(_ context.Context, id string, l tenant.Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[id] = l
	return nil
}

func (m *mockStore) FindByAPIKey(context.Context, string) (*tenant.Tenant, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) FindByHost(context.Context, string, string) (*tenant.Tenant, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) FindByID(context.Context, string) (*tenant.Tenant, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateUsage(context.Context, string, tenant.UsageUpdate) error { return nil }
func (m *mockStore) List(context.Context) ([]tenant.Tenant, error)                 { return nil, nil }
func (m *mockStore) CountByStatus(context.Context) (map[tenant.Status]int, error) {
	return m.counts, nil
}

type auditQueue struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (q *auditQueue) Publish(_ context.Context, _ string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, data)
	return nil
}
func (q *auditQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *auditQueue) Drain() error      { return nil }
func (q *auditQueue) Close() error      { return nil }
func (q *auditQueue) IsConnected() bool { return true }

func newService(store *mockStore, q messagequeue.Queue) *TenantService {
	return NewTenantService(store, q, slog.New(slog.DiscardHandler))
}

func TestProvision(t *testing.T) {
	store := newMockStore()
	svc := newService(store, nil)

	res, err := svc.Provision(context.Background(), tenant.CreateRequest{
		Name:       "Acme Inc",
		Subdomain:  "acme",
		OwnerEmail: "owner@acme.test",
		Plan:       tenant.PlanPro,
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	got := res.Tenant
	if got.ID == "" {
		t.Error("tenant id not generated")
	}
	if !strings.HasPrefix(got.APIKey, tenant.APIKeyPrefix) {
		t.Errorf("api key %q missing prefix %q", got.APIKey, tenant.APIKeyPrefix)
	}
	if got.Status != tenant.StatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.Limits != tenant.PlanLimits(tenant.PlanPro) {
		t.Errorf("limits = %+v, want pro plan defaults", got.Limits)
	}
	if res.Secret == "" {
		t.Fatal("plaintext secret not returned")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.APISecretHash), []byte(res.Secret)); err != nil {
		t.Errorf("stored hash does not match returned secret: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("store received %d creates, want 1", len(store.created))
	}
}

func TestProvisionValidation(t *testing.T) {
	tests := []struct {
		name string
		req  tenant.CreateRequest
	}{
		{"missing name", tenant.CreateRequest{Subdomain: "acme", OwnerEmail: "a@b.c"}},
		{"missing owner email", tenant.CreateRequest{Name: "Acme", Subdomain: "acme"}},
		{"bad subdomain", tenant.CreateRequest{Name: "Acme", Subdomain: "Not-Valid!", OwnerEmail: "a@b.c"}},
		{"reserved subdomain", tenant.CreateRequest{Name: "Acme", Subdomain: "admin", OwnerEmail: "a@b.c"}},
	}
	svc := newService(newMockStore(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Provision(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Provision() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestProvisionDefaultsToFreePlan(t *testing.T) {
	svc := newService(newMockStore(), nil)
	res, err := svc.Provision(context.Background(), tenant.CreateRequest{
		Name: "Acme", Subdomain: "acme", OwnerEmail: "a@b.c",
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if res.Tenant.Plan != tenant.PlanFree {
		t.Errorf("plan = %q, want free", res.Tenant.Plan)
	}
}

func TestProvisionConflict(t *testing.T) {
	store := newMockStore()
	store.createErr = domain.ErrConflict
	svc := newService(store, nil)

	_, err := svc.Provision(context.Background(), tenant.CreateRequest{
		Name: "Acme", Subdomain: "acme", OwnerEmail: "a@b.c",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Provision() error = %v, want ErrConflict", err)
	}
}

func TestSuspendActivate(t *testing.T) {
	store := newMockStore()
	svc := newService(store, nil)

	if err := svc.Suspend(context.Background(), "t1"); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if store.statuses["t1"] != tenant.StatusSuspended {
		t.Errorf("status = %q, want suspended", store.statuses["t1"])
	}

	if err := svc.Activate(context.Background(), "t1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if store.statuses["t1"] != tenant.StatusActive {
		t.Errorf("status = %q, want active", store.statuses["t1"])
	}
}

func TestUpdateLimitsRejectsNegative(t *testing.T) {
	svc := newService(newMockStore(), nil)
	err := svc.UpdateLimits(context.Background(), "t1", tenant.Limits{MaxAPIRequestsPerHour: -1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("UpdateLimits() error = %v, want ErrValidation", err)
	}
}

func TestAuditEvents(t *testing.T) {
	store := newMockStore()
	q := &auditQueue{}
	svc := newService(store, q)

	res, err := svc.Provision(context.Background(), tenant.CreateRequest{
		Name: "Acme", Subdomain: "acme", OwnerEmail: "a@b.c",
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if err := svc.Suspend(context.Background(), res.Tenant.ID); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.payloads) != 2 {
		t.Fatalf("published %d audit events, want 2", len(q.payloads))
	}
	var p messagequeue.AuditPayload
	if err := json.Unmarshal(q.payloads[1], &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if p.Action != messagequeue.AuditTenantSuspended || p.TenantID != res.Tenant.ID {
		t.Errorf("payload = %+v, want suspended event for %s", p, res.Tenant.ID)
	}
}

func TestStats(t *testing.T) {
	store := newMockStore()
	store.counts = map[tenant.Status]int{
		tenant.StatusActive:    3,
		tenant.StatusSuspended: 1,
	}
	svc := newService(store, nil)

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Total != 4 || st.Active != 3 || st.Suspended != 1 {
		t.Errorf("Stats() = %+v, want total 4, active 3, suspended 1", st)
	}
}
