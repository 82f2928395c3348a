// Package service implements tenant lifecycle operations.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pagebase/pagebase/internal/domain"
	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/directory"
	"github.com/pagebase/pagebase/internal/port/messagequeue"
)

// ProvisionResult is returned from Provision. Secret is the only time
// the API secret is available in plaintext.
type ProvisionResult struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Secret string         `json:"api_secret"`
}

// Stats summarizes the tenant population by account status.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Suspended int `json:"suspended"`
	Cancelled int `json:"cancelled"`
}

// TenantService provisions and administers tenants. queue may be nil,
// in which case audit events are skipped.
type TenantService struct {
	dir   directory.Directory
	queue messagequeue.Queue
	log   *slog.Logger
	now   func() time.Time
}

// NewTenantService creates a TenantService.
func NewTenantService(dir directory.Directory, queue messagequeue.Queue, log *slog.Logger) *TenantService {
	return &TenantService{dir: dir, queue: queue, log: log, now: time.Now}
}

// Provision validates the request, generates credentials, and creates
// the tenant with its plan's default quotas.
func (s *TenantService) Provision(ctx context.Context, req tenant.CreateRequest) (*ProvisionResult, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if req.OwnerEmail == "" {
		return nil, fmt.Errorf("%w: owner_email is required", domain.ErrValidation)
	}
	if err := tenant.ValidateSubdomain(req.Subdomain); err != nil {
		return nil, err
	}

	plan := req.Plan
	if plan == "" {
		plan = tenant.PlanFree
	}

	secret, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate api secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api secret: %w", err)
	}
	key, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	now := s.now()
	t := &tenant.Tenant{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Subdomain:     req.Subdomain,
		CustomDomain:  req.CustomDomain,
		APIKey:        tenant.APIKeyPrefix + key,
		APISecretHash: string(hash),
		Status:        tenant.StatusActive,
		Plan:          plan,
		Limits:        tenant.PlanLimits(plan),
		OwnerEmail:    req.OwnerEmail,
		BillingEmail:  req.BillingEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Settings != nil {
		t.Settings = *req.Settings
	}

	if err := s.dir.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.log.Info("tenant provisioned", "tenant_id", t.ID, "subdomain", t.Subdomain, "plan", t.Plan)
	s.audit(ctx, messagequeue.AuditTenantCreated, t.ID)
	return &ProvisionResult{Tenant: t, Secret: secret}, nil
}

// Suspend transitions a tenant to suspended. Enforcement on the request
// path lags by at most the resolver cache TTL.
func (s *TenantService) Suspend(ctx context.Context, id string) error {
	if err := s.dir.UpdateStatus(ctx, id, tenant.StatusSuspended); err != nil {
		return fmt.Errorf("suspend tenant: %w", err)
	}
	s.log.Info("tenant suspended", "tenant_id", id)
	s.audit(ctx, messagequeue.AuditTenantSuspended, id)
	return nil
}

// Activate transitions a tenant back to active.
func (s *TenantService) Activate(ctx context.Context, id string) error {
	if err := s.dir.UpdateStatus(ctx, id, tenant.StatusActive); err != nil {
		return fmt.Errorf("activate tenant: %w", err)
	}
	s.log.Info("tenant activated", "tenant_id", id)
	s.audit(ctx, messagequeue.AuditTenantActivated, id)
	return nil
}

// UpdateLimits replaces a tenant's quota set.
func (s *TenantService) UpdateLimits(ctx context.Context, id string, l tenant.Limits) error {
	if l.MaxAPIRequestsPerHour < 0 || l.MaxUsers < 0 || l.MaxStorageMB < 0 {
		return fmt.Errorf("%w: limits must not be negative", domain.ErrValidation)
	}
	if err := s.dir.UpdateLimits(ctx, id, l); err != nil {
		return fmt.Errorf("update limits: %w", err)
	}
	s.log.Info("tenant limits updated", "tenant_id", id)
	s.audit(ctx, messagequeue.AuditLimitsUpdated, id)
	return nil
}

// Get returns a tenant by id.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := s.dir.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	ts, err := s.dir.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return ts, nil
}

// Stats returns tenant counts by status.
func (s *TenantService) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.dir.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("tenant stats: %w", err)
	}
	st := Stats{
		Active:    counts[tenant.StatusActive],
		Suspended: counts[tenant.StatusSuspended],
		Cancelled: counts[tenant.StatusCancelled],
	}
	st.Total = st.Active + st.Suspended + st.Cancelled
	return st, nil
}

// audit publishes a tenant lifecycle event. Failures are logged and
// swallowed so administration never depends on the queue.
func (s *TenantService) audit(ctx context.Context, action, tenantID string) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.AuditPayload{
		Action:   action,
		TenantID: tenantID,
		At:       s.now(),
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectTenantAudit, data); err != nil {
		s.log.Warn("audit event publish failed", "action", action, "tenant_id", tenantID, "error", err)
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
