// Package resolver maps inbound request identity to a tenant record.
//
// Three strategies are tried in strict priority order: API key header,
// host-derived subdomain or custom domain, and an explicit tenant id
// header for diagnostics. The first two sit behind a short-TTL snapshot
// cache so the tenant directory is not consulted on every request;
// staleness is bounded by the TTL and accepted as a latency tradeoff.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pagebase/pagebase/internal/adapter/otel"
	"github.com/pagebase/pagebase/internal/domain"
	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/cache"
	"github.com/pagebase/pagebase/internal/port/directory"
	"github.com/pagebase/pagebase/internal/resilience"
)

// DefaultTTL bounds how stale a cached tenant snapshot may be.
const DefaultTTL = 10 * time.Minute

// DefaultDirectoryTimeout is the per-lookup deadline for directory queries.
const DefaultDirectoryTimeout = 2 * time.Second

const (
	headerAPIKey   = "X-Api-Key"
	headerTenantID = "X-Tenant-Id"
)

// Options tunes a Resolver. Zero values fall back to defaults.
type Options struct {
	TTL              time.Duration
	DirectoryTimeout time.Duration
	Breaker          *resilience.Breaker
	Metrics          *otel.Metrics
	Now              func() time.Time
}

// Resolver resolves the owning tenant for inbound requests.
// Safe for concurrent use.
type Resolver struct {
	dir     directory.Directory
	cache   cache.Cache
	log     *slog.Logger
	breaker *resilience.Breaker
	metrics *otel.Metrics
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// New creates a Resolver over the given directory and snapshot cache.
func New(dir directory.Directory, c cache.Cache, log *slog.Logger, opts Options) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.DirectoryTimeout <= 0 {
		opts.DirectoryTimeout = DefaultDirectoryTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		dir:     dir,
		cache:   c,
		log:     log,
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		ttl:     opts.TTL,
		timeout: opts.DirectoryTimeout,
		now:     opts.Now,
	}
}

// snapshot is the cached form of a resolved tenant. CachedAt is checked
// against the resolver clock so expiry is deterministic under test even
// though the backing cache also receives the TTL.
type snapshot struct {
	Tenant   tenant.Tenant `json:"tenant"`
	CachedAt time.Time     `json:"cached_at"`
}

// Resolve determines the owning tenant from request headers and host.
// Returns nil when no strategy matches; absence is a valid outcome, not
// an error. Directory failures are logged and degrade to "no match for
// this strategy".
func (r *Resolver) Resolve(ctx context.Context, header http.Header, host string) *tenant.Tenant {
	// 1. API key from X-Api-Key or a Bearer authorization header.
	if key := apiKeyFromHeader(header); key != "" {
		cacheKey := "key:" + key
		if t := r.fromCache(ctx, cacheKey); t != nil {
			return t
		}
		t := r.query(ctx, func(ctx context.Context) (*tenant.Tenant, error) {
			return r.dir.FindByAPIKey(ctx, key)
		})
		if t != nil {
			r.store(ctx, cacheKey, t)
			return t
		}
	}

	// 2. Subdomain or custom domain derived from the Host header.
	if sub := ExtractSubdomain(host); sub != "" {
		cacheKey := "subdomain:" + sub
		if t := r.fromCache(ctx, cacheKey); t != nil {
			return t
		}
		t := r.query(ctx, func(ctx context.Context) (*tenant.Tenant, error) {
			return r.dir.FindByHost(ctx, sub, host)
		})
		if t != nil {
			r.store(ctx, cacheKey, t)
			return t
		}
	}

	// 3. Explicit tenant id header, diagnostic use only. Never cached,
	// so deprovisioning is visible immediately during testing.
	if id := header.Get(headerTenantID); id != "" {
		t := r.query(ctx, func(ctx context.Context) (*tenant.Tenant, error) {
			return r.dir.FindByID(ctx, id)
		})
		if t != nil && t.Active() {
			return t
		}
	}

	return nil
}

// apiKeyFromHeader extracts a prefixed tenant API key from the request
// headers, or returns "" when none is present.
func apiKeyFromHeader(header http.Header) string {
	key := header.Get(headerAPIKey)
	if key == "" {
		auth := header.Get("Authorization")
		if token := strings.TrimPrefix(auth, "Bearer "); token != auth {
			key = token
		}
	}
	if !strings.HasPrefix(key, tenant.APIKeyPrefix) {
		return ""
	}
	return key
}

// fromCache returns a cached tenant snapshot if present and fresh.
func (r *Resolver) fromCache(ctx context.Context, key string) *tenant.Tenant {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil || !ok {
		r.metrics.AddCacheMiss(ctx)
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.log.Warn("discarding undecodable cache entry", "key", key, "error", err)
		_ = r.cache.Delete(ctx, key)
		r.metrics.AddCacheMiss(ctx)
		return nil
	}
	if r.now().Sub(snap.CachedAt) >= r.ttl {
		r.metrics.AddCacheMiss(ctx)
		return nil
	}

	r.metrics.AddCacheHit(ctx)
	return &snap.Tenant
}

// store caches a tenant snapshot under the given lookup key.
func (r *Resolver) store(ctx context.Context, key string, t *tenant.Tenant) {
	data, err := json.Marshal(snapshot{Tenant: *t, CachedAt: r.now()})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.log.Warn("tenant snapshot cache write failed", "key", key, "error", err)
	}
}

// query runs a directory lookup under the configured timeout and
// circuit breaker. A not-found result and a directory failure both
// yield nil; the failure is additionally logged and counted so the
// caller can fall through to the next strategy either way.
func (r *Resolver) query(ctx context.Context, fn func(context.Context) (*tenant.Tenant, error)) *tenant.Tenant {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	lookup := func() (*tenant.Tenant, error) {
		t, err := fn(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			// A clean miss must not trip the breaker.
			return nil, nil
		}
		return t, err
	}

	var t *tenant.Tenant
	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(func() error {
			var execErr error
			t, execErr = lookup()
			return execErr
		})
	} else {
		t, err = lookup()
	}

	if err != nil {
		r.metrics.AddDirectoryError(ctx)
		r.log.Error("tenant directory lookup failed", "error", err)
		return nil
	}
	return t
}
