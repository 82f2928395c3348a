package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagebase/pagebase/internal/admission"
	"github.com/pagebase/pagebase/internal/domain/tenant"
)

type stubResolver struct {
	tenant *tenant.Tenant
	panics bool
	calls  int
}

func (s *stubResolver) Resolve(context.Context, http.Header, string) *tenant.Tenant {
	s.calls++
	if s.panics {
		panic("directory exploded")
	}
	return s.tenant
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func newChain(res *stubResolver, adm Admitter) (http.Handler, *bool) {
	var hit bool
	tc := NewTenantContext(res, adm, slog.New(slog.DiscardHandler), nil)
	return tc.Handler(okHandler(&hit)), &hit
}

func activeTenant(limit int) *tenant.Tenant {
	return &tenant.Tenant{
		ID:        "t1",
		Subdomain: "acme",
		Status:    tenant.StatusActive,
		Limits:    tenant.Limits{MaxAPIRequestsPerHour: limit},
	}
}

func TestExemptPaths(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/health", true},
		{"/api/graphql", true},
		{"/api/admin", true},
		{"/api/admin/tenants", true},
		{"/api/users/login", true},
		{"/api/users/forgot-password", true},
		{"/static/logo.png", true},
		{"/", true},
		{"/api/posts", false},
		{"/api/users", false},
		{"/api/healthcheck", false},
	}
	for _, tt := range tests {
		if got := exempt(tt.path); got != tt.want {
			t.Errorf("exempt(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExemptPathSkipsResolution(t *testing.T) {
	res := &stubResolver{tenant: activeTenant(10)}
	h, hit := newChain(res, admission.New(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if !*hit {
		t.Fatal("exempt request did not reach the handler")
	}
	if res.calls != 0 {
		t.Errorf("resolver called %d times for exempt path, want 0", res.calls)
	}
}

func TestUnresolvedPassesThrough(t *testing.T) {
	h, hit := newChain(&stubResolver{}, admission.New(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if !*hit {
		t.Fatal("request without a tenant should pass through")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Errorf("X-RateLimit-Limit = %q for unresolved request, want unset", got)
	}
}

func TestResolutionPanicFailsOpen(t *testing.T) {
	h, hit := newChain(&stubResolver{panics: true}, admission.New(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if !*hit {
		t.Fatal("resolution failure must not block the request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSuspendedTenantRejected(t *testing.T) {
	tn := activeTenant(10)
	tn.Status = tenant.StatusSuspended
	h, hit := newChain(&stubResolver{tenant: tn}, admission.New(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if *hit {
		t.Fatal("suspended tenant request reached the handler")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body rejection
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body decode: %v", err)
	}
	if body.Code != "TENANT_SUSPENDED" {
		t.Errorf("code = %q, want TENANT_SUSPENDED", body.Code)
	}
}

func TestRateLimitFlow(t *testing.T) {
	tn := activeTenant(2)
	res := &stubResolver{tenant: tn}
	ctrl := admission.New(nil)
	h, _ := newChain(res, ctrl)

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
		return rec
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("first request: remaining = %q, want 1", got)
	}

	second := send()
	if got := second.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("second request: remaining = %q, want 0", got)
	}

	third := send()
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", third.Code)
	}
	if got := third.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}
	if got := third.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	var body rejection
	if err := json.NewDecoder(third.Body).Decode(&body); err != nil {
		t.Fatalf("body decode: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}

	// Suspension takes effect immediately and does not consume quota.
	tn.Status = tenant.StatusSuspended
	fourth := send()
	if fourth.Code != http.StatusForbidden {
		t.Fatalf("fourth request: status = %d, want 403 after suspension", fourth.Code)
	}
}

func TestTenantInfoInContext(t *testing.T) {
	res := &stubResolver{tenant: activeTenant(5)}
	var got TenantInfo
	var ok bool
	tc := NewTenantContext(res, admission.New(nil), slog.New(slog.DiscardHandler), nil)
	h := tc.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = TenantFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	if !ok {
		t.Fatal("tenant info missing from downstream context")
	}
	if got.ID != "t1" || got.Subdomain != "acme" || got.Remaining != 4 {
		t.Errorf("TenantInfo = %+v, want {t1 acme 4}", got)
	}
}
