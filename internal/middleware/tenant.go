package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pagebase/pagebase/internal/adapter/otel"
	"github.com/pagebase/pagebase/internal/admission"
	"github.com/pagebase/pagebase/internal/domain/tenant"
)

// TenantResolver resolves the owning tenant for a request, or nil when
// no strategy matches.
type TenantResolver interface {
	Resolve(ctx context.Context, header http.Header, host string) *tenant.Tenant
}

// Admitter decides whether a resolved tenant's request proceeds.
type Admitter interface {
	Admit(t *tenant.Tenant) admission.Decision
}

// TenantInfo is the per-request tenant context handed to downstream
// handlers.
type TenantInfo struct {
	ID        string
	Subdomain string
	Remaining int
}

type tenantCtxKey struct{}

// WithTenant returns a context carrying the resolved tenant info.
func WithTenant(ctx context.Context, info TenantInfo) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, info)
}

// TenantFromContext returns the tenant info stored by TenantContext.
func TenantFromContext(ctx context.Context) (TenantInfo, bool) {
	info, ok := ctx.Value(tenantCtxKey{}).(TenantInfo)
	return info, ok
}

// exemptPrefixes are API paths that bypass tenant resolution entirely.
var exemptPrefixes = []string{
	"/api/admin",
	"/api/users/login",
	"/api/users/forgot-password",
}

// exemptExact are API paths exempted by exact match.
var exemptExact = map[string]bool{
	"/api/health":  true,
	"/api/graphql": true,
}

// TenantContext resolves the tenant for each API request, enforces
// suspension and the hourly rate limit, and attaches tenant info to the
// request context. Requests with no resolvable tenant pass through
// untouched.
type TenantContext struct {
	resolver TenantResolver
	admitter Admitter
	log      *slog.Logger
	metrics  *otel.Metrics
}

// NewTenantContext builds the tenant middleware. metrics may be nil.
func NewTenantContext(r TenantResolver, a Admitter, log *slog.Logger, m *otel.Metrics) *TenantContext {
	return &TenantContext{resolver: r, admitter: a, log: log, metrics: m}
}

// Handler returns the middleware function.
func (tc *TenantContext) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		t := tc.resolveSafe(ctx, r)
		if t == nil {
			tc.metrics.AddUnresolved(ctx)
			next.ServeHTTP(w, r)
			return
		}

		if t.Suspended() {
			tc.metrics.AddSuspended(ctx)
			tc.log.Info("rejecting suspended tenant", "tenant_id", t.ID)
			writeRejection(w, http.StatusForbidden, rejection{
				Error:   "Tenant suspended",
				Message: "This tenant account has been suspended",
				Code:    "TENANT_SUSPENDED",
			}, nil)
			return
		}

		d := tc.admitter.Admit(t)
		if !d.Allowed {
			tc.metrics.AddRateLimited(ctx)
			tc.log.Info("rate limit exceeded", "tenant_id", t.ID, "limit", d.Limit)
			writeRejection(w, http.StatusTooManyRequests, rejection{
				Error:   "Rate limit exceeded",
				Message: "Too many requests. Please try again later.",
				Code:    "RATE_LIMIT_EXCEEDED",
			}, &d)
			return
		}

		tc.metrics.AddAdmitted(ctx)
		setRateHeaders(w, d)
		ctx = WithTenant(ctx, TenantInfo{
			ID:        t.ID,
			Subdomain: t.Subdomain,
			Remaining: d.Remaining,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveSafe resolves the tenant and converts any panic in the
// resolution path into "no tenant", so identification failures never
// take down request handling.
func (tc *TenantContext) resolveSafe(ctx context.Context, r *http.Request) (t *tenant.Tenant) {
	defer func() {
		if rec := recover(); rec != nil {
			tc.log.Warn("tenant resolution panicked, continuing without tenant", "panic", rec)
			t = nil
		}
	}()
	return tc.resolver.Resolve(ctx, r.Header, r.Host)
}

// exempt reports whether the path bypasses tenant handling. Non-API
// paths (static assets, app pages) are always exempt.
func exempt(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return true
	}
	if exemptExact[path] {
		return true
	}
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

type rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// writeRejection writes a JSON rejection body. Rate headers must be set
// before WriteHeader.
func writeRejection(w http.ResponseWriter, status int, body rejection, d *admission.Decision) {
	w.Header().Set("Content-Type", "application/json")
	if d != nil {
		setRateHeaders(w, *d)
		w.Header().Set("Retry-After", strconv.Itoa(int(admission.Window.Seconds())))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func setRateHeaders(w http.ResponseWriter, d admission.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}
