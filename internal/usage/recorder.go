// Package usage persists advisory per-tenant usage counters off the
// request path.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pagebase/pagebase/internal/domain/tenant"
	"github.com/pagebase/pagebase/internal/port/directory"
	"github.com/pagebase/pagebase/internal/port/messagequeue"
)

// DefaultBuffer is the channel capacity for pending observations.
const DefaultBuffer = 1024

const writeTimeout = 5 * time.Second

type snapshot struct {
	tenantID string
	count    int
	at       time.Time
}

// Recorder writes usage observations to the tenant directory and, when
// a queue is configured, publishes them as accounting events. Record is
// non-blocking: observations are dropped rather than stalling a request
// when the buffer is full. The counters are advisory and never read
// back for enforcement, so loss is acceptable.
type Recorder struct {
	dir   directory.Directory
	queue messagequeue.Queue
	log   *slog.Logger
	ch    chan snapshot
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// New creates a Recorder and starts its worker. queue may be nil.
// buffer <= 0 selects DefaultBuffer.
func New(dir directory.Directory, queue messagequeue.Queue, log *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		dir:   dir,
		queue: queue,
		log:   log,
		ch:    make(chan snapshot, buffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues a usage observation. Never blocks.
func (r *Recorder) Record(tenantID string, count int, at time.Time) {
	select {
	case r.ch <- snapshot{tenantID: tenantID, count: count, at: at}:
	default:
		r.log.Warn("usage buffer full, dropping observation", "tenant_id", tenantID)
	}
}

// Close stops accepting observations and waits for the worker to flush
// the buffer.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for s := range r.ch {
		r.flush(s)
	}
}

func (r *Recorder) flush(s snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.dir.UpdateUsage(ctx, s.tenantID, tenant.UsageUpdate{
		APIRequestsThisHour: s.count,
		LastAPIRequestAt:    s.at,
	})
	if err != nil {
		r.log.Warn("usage persistence failed", "tenant_id", s.tenantID, "error", err)
	}

	if r.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.UsagePayload{
		TenantID:         s.tenantID,
		RequestsThisHour: s.count,
		At:               s.at,
	})
	if err != nil {
		return
	}
	if err := r.queue.Publish(ctx, messagequeue.SubjectTenantUsage, data); err != nil {
		r.log.Warn("usage event publish failed", "tenant_id", s.tenantID, "error", err)
	}
}
