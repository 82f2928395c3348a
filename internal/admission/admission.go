// Package admission enforces per-tenant hourly rate limits and account
// status checks over process-local fixed windows.
package admission

import (
	"sync"
	"time"

	"github.com/pagebase/pagebase/internal/domain/tenant"
)

// Window is the fixed rate-limit window length.
const Window = time.Hour

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Recorder receives usage observations for admitted requests. Record
// must not block; the controller calls it on the request path.
type Recorder interface {
	Record(tenantID string, count int, at time.Time)
}

// window tracks one tenant's request count in the current fixed window.
type window struct {
	mu       sync.Mutex
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// Controller tracks per-tenant request counts in process-local fixed
// windows. Counts are not shared across replicas, so with N replicas
// the effective fleet-wide ceiling is up to N times the configured
// limit.
type Controller struct {
	mu       sync.Mutex
	windows  map[string]*window
	recorder Recorder
	now      func() time.Time
}

// New creates a Controller. recorder may be nil.
func New(recorder Recorder) *Controller {
	return &Controller{
		windows:  make(map[string]*window),
		recorder: recorder,
		now:      time.Now,
	}
}

// IsSuspended reports whether the tenant must be rejected outright.
// Checked before Admit so a suspended tenant never consumes quota.
func (c *Controller) IsSuspended(t *tenant.Tenant) bool { return t.Suspended() }

// Admit checks the tenant's status and hourly window, counting this
// request against the window when the tenant is not suspended. A
// suspended tenant is rejected without touching its window.
func (c *Controller) Admit(t *tenant.Tenant) Decision {
	limit := t.RateLimit()
	if t.Suspended() {
		return Decision{Allowed: false, Limit: limit}
	}

	now := c.now()

	c.mu.Lock()
	w, ok := c.windows[t.ID]
	if !ok {
		w = &window{resetAt: now.Add(Window)}
		c.windows[t.ID] = w
	}
	c.mu.Unlock()

	w.mu.Lock()
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(Window)
	}
	w.count++
	count := w.count
	w.lastSeen = now
	w.mu.Unlock()

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{Allowed: count <= limit, Limit: limit, Remaining: remaining}
	if d.Allowed && c.recorder != nil {
		c.recorder.Record(t.ID, count, now)
	}
	return d
}

// Len returns the number of tracked tenant windows.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// StartCleanup launches a goroutine that drops windows idle longer than
// maxIdle, bounding memory when tenants come and go. The returned func
// stops it.
func (c *Controller) StartCleanup(interval, maxIdle time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.sweep(maxIdle)
			}
		}
	}()
	return func() { close(done) }
}

func (c *Controller) sweep(maxIdle time.Duration) {
	cutoff := c.now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, w := range c.windows {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(c.windows, id)
		}
	}
}
