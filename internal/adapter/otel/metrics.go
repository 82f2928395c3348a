package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pagebase"

// Metrics holds all Pagebase metric instruments. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	Admitted        metric.Int64Counter
	RateLimited     metric.Int64Counter
	Suspended       metric.Int64Counter
	Unresolved      metric.Int64Counter
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	DirectoryErrors metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Admitted, err = meter.Int64Counter("pagebase.requests.admitted",
		metric.WithDescription("Requests admitted past the rate limiter"))
	if err != nil {
		return nil, err
	}

	m.RateLimited, err = meter.Int64Counter("pagebase.requests.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}

	m.Suspended, err = meter.Int64Counter("pagebase.requests.suspended",
		metric.WithDescription("Requests rejected because the tenant is suspended"))
	if err != nil {
		return nil, err
	}

	m.Unresolved, err = meter.Int64Counter("pagebase.requests.unresolved",
		metric.WithDescription("API requests with no resolvable tenant"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("pagebase.resolver.cache_hits",
		metric.WithDescription("Tenant snapshot cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("pagebase.resolver.cache_misses",
		metric.WithDescription("Tenant snapshot cache misses"))
	if err != nil {
		return nil, err
	}

	m.DirectoryErrors, err = meter.Int64Counter("pagebase.resolver.directory_errors",
		metric.WithDescription("Tenant directory lookup failures"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AddAdmitted records an admitted request.
func (m *Metrics) AddAdmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.Admitted.Add(ctx, 1)
}

// AddRateLimited records a rate-limited rejection.
func (m *Metrics) AddRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}

// AddSuspended records a suspended-tenant rejection.
func (m *Metrics) AddSuspended(ctx context.Context) {
	if m == nil {
		return
	}
	m.Suspended.Add(ctx, 1)
}

// AddUnresolved records an API request with no tenant context.
func (m *Metrics) AddUnresolved(ctx context.Context) {
	if m == nil {
		return
	}
	m.Unresolved.Add(ctx, 1)
}

// AddCacheHit records a tenant snapshot cache hit.
func (m *Metrics) AddCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// AddCacheMiss records a tenant snapshot cache miss.
func (m *Metrics) AddCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// AddDirectoryError records a failed tenant directory lookup.
func (m *Metrics) AddDirectoryError(ctx context.Context) {
	if m == nil {
		return
	}
	m.DirectoryErrors.Add(ctx, 1)
}
