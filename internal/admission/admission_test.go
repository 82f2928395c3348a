package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/pagebase/pagebase/internal/domain/tenant"
)

type recordedCall struct {
	tenantID string
	count    int
}

type captureRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *captureRecorder) Record(tenantID string, count int, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{tenantID, count})
}

func (r *captureRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func limitedTenant(id string, limit int) *tenant.Tenant {
	return &tenant.Tenant{
		ID:     id,
		Status: tenant.StatusActive,
		Limits: tenant.Limits{MaxAPIRequestsPerHour: limit},
	}
}

func TestAdmitWithinLimit(t *testing.T) {
	c := New(nil)
	tn := limitedTenant("t1", 3)

	for i, wantRemaining := range []int{2, 1, 0} {
		d := c.Admit(tn)
		if !d.Allowed {
			t.Fatalf("request %d: Allowed = false, want true", i+1)
		}
		if d.Remaining != wantRemaining {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, d.Remaining, wantRemaining)
		}
		if d.Limit != 3 {
			t.Errorf("request %d: Limit = %d, want 3", i+1, d.Limit)
		}
	}

	d := c.Admit(tn)
	if d.Allowed {
		t.Fatal("request 4: Allowed = true, want rejection past the limit")
	}
	if d.Remaining != 0 {
		t.Errorf("request 4: Remaining = %d, want 0", d.Remaining)
	}
}

func TestAdmitDefaultLimit(t *testing.T) {
	c := New(nil)
	tn := &tenant.Tenant{ID: "t1", Status: tenant.StatusActive}

	d := c.Admit(tn)
	if d.Limit != tenant.DefaultRateLimit {
		t.Errorf("Limit = %d, want default %d", d.Limit, tenant.DefaultRateLimit)
	}
	if d.Remaining != tenant.DefaultRateLimit-1 {
		t.Errorf("Remaining = %d, want %d", d.Remaining, tenant.DefaultRateLimit-1)
	}
}

func TestAdmitWindowReset(t *testing.T) {
	now := time.Now()
	c := New(nil)
	c.now = func() time.Time { return now }
	tn := limitedTenant("t1", 2)

	c.Admit(tn)
	c.Admit(tn)
	if d := c.Admit(tn); d.Allowed {
		t.Fatal("third request should be rejected at limit 2")
	}

	now = now.Add(Window + time.Second)

	d := c.Admit(tn)
	if !d.Allowed {
		t.Fatal("request after window expiry should be admitted")
	}
	if d.Remaining != 1 {
		t.Errorf("Remaining = %d after reset, want 1", d.Remaining)
	}
}

func TestAdmitSuspendedDoesNotCount(t *testing.T) {
	c := New(nil)
	tn := limitedTenant("t1", 5)

	c.Admit(tn)

	tn.Status = tenant.StatusSuspended
	if d := c.Admit(tn); d.Allowed {
		t.Fatal("suspended tenant should be rejected")
	}

	tn.Status = tenant.StatusActive
	d := c.Admit(tn)
	if d.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3: rejected suspension must not consume quota", d.Remaining)
	}
}

func TestAdmitTenantsIndependent(t *testing.T) {
	c := New(nil)
	a := limitedTenant("a", 1)
	b := limitedTenant("b", 1)

	if d := c.Admit(a); !d.Allowed {
		t.Fatal("tenant a first request should be admitted")
	}
	if d := c.Admit(a); d.Allowed {
		t.Fatal("tenant a second request should be rejected")
	}
	if d := c.Admit(b); !d.Allowed {
		t.Fatal("tenant b must not be affected by tenant a's window")
	}
}

func TestAdmitConcurrent(t *testing.T) {
	const limit = 100
	const requests = 150

	c := New(nil)
	tn := limitedTenant("t1", limit)

	var wg sync.WaitGroup
	allowed := make(chan bool, requests)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- c.Admit(tn).Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	var got int
	for ok := range allowed {
		if ok {
			got++
		}
	}
	if got != limit {
		t.Errorf("admitted %d of %d concurrent requests, want exactly %d", got, requests, limit)
	}
}

func TestAdmitRecordsUsage(t *testing.T) {
	rec := &captureRecorder{}
	c := New(rec)
	tn := limitedTenant("t1", 2)

	c.Admit(tn)
	c.Admit(tn)
	c.Admit(tn) // rejected, must not be recorded

	if rec.len() != 2 {
		t.Fatalf("recorded %d observations, want 2", rec.len())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.calls[1].count != 2 {
		t.Errorf("second observation count = %d, want 2", rec.calls[1].count)
	}
}

func TestSweepDropsIdleWindows(t *testing.T) {
	now := time.Now()
	c := New(nil)
	c.now = func() time.Time { return now }

	c.Admit(limitedTenant("old", 10))
	now = now.Add(3 * time.Hour)
	c.Admit(limitedTenant("fresh", 10))

	c.sweep(2 * time.Hour)

	if c.Len() != 1 {
		t.Fatalf("Len() = %d after sweep, want 1", c.Len())
	}
}

func TestStartCleanupStops(t *testing.T) {
	c := New(nil)
	stop := c.StartCleanup(time.Millisecond, time.Hour)
	stop()
}
