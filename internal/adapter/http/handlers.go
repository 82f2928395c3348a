package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/service"
)

const headerProvisionSecret = "X-Provision-Secret"

// TenantAdmin is the slice of the tenant service the handlers need.
type TenantAdmin interface {
	Provision(ctx context.Context, req tenant.CreateRequest) (*service.ProvisionResult, error)
	Suspend(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	UpdateLimits(ctx context.Context, id string, l tenant.Limits) error
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
	List(ctx context.Context) ([]tenant.Tenant, error)
	Stats(ctx context.Context) (service.Stats, error)
}

// QueueStatus reports message queue connectivity for the health check.
type QueueStatus interface {
	IsConnected() bool
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	tenants         TenantAdmin
	queue           QueueStatus // may be nil
	provisionSecret string
}

// NewHandlers creates the handler set. An empty provisionSecret
// disables the admin API.
func NewHandlers(tenants TenantAdmin, queue QueueStatus, provisionSecret string) *Handlers {
	return &Handlers{tenants: tenants, queue: queue, provisionSecret: provisionSecret}
}

type healthResponse struct {
	Status  string        `json:"status"`
	Queue   string        `json:"queue,omitempty"`
	Tenants service.Stats `json:"tenants"`
}

// Health reports service and dependency status. The tenant stats query
// doubles as the directory liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tenants.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}

	resp := healthResponse{Status: "ok", Tenants: stats}
	if h.queue != nil {
		resp.Queue = "connected"
		if !h.queue.IsConnected() {
			resp.Queue = "disconnected"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorized checks the provisioning secret header in constant time.
func (h *Handlers) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.provisionSecret == "" {
		writeError(w, http.StatusForbidden, "remote provisioning is disabled")
		return false
	}
	got := r.Header.Get(headerProvisionSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.provisionSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid provisioning secret")
		return false
	}
	return true
}

// CreateTenant provisions a new tenant.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}
	res, err := h.tenants.Provision(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetTenant returns a tenant by id.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	t, err := h.tenants.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTenants returns all tenants.
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	ts, err := h.tenants.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "tenants not found")
		return
	}
	if ts == nil {
		ts = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, ts)
}

// SuspendTenant suspends a tenant account.
func (h *Handlers) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if err := h.tenants.Suspend(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateTenant reactivates a suspended tenant.
func (h *Handlers) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if err := h.tenants.Activate(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateTenantLimits replaces a tenant's quota set.
func (h *Handlers) UpdateTenantLimits(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	limits, ok := readJSON[tenant.Limits](w, r)
	if !ok {
		return
	}
	if err := h.tenants.UpdateLimits(r.Context(), urlParam(r, "id"), limits); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
