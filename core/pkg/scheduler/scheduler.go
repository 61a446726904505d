// Package scheduler defers a request's dispatch to a future time. It is
// deliberately ignorant of the processor's internals — it only carries a
// FireSchedulerRequest payload and a due time, and calls back into
// whatever Fire function the processor registered — so a Backend can be
// swapped (in-memory, a durable queue, a cron library) without teaching
// it about Send/Publish/Post, the same separation the teacher keeps
// between its cron Adapter and the Scheduler it wraps.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/madcok-co/conduit/core/pkg/idgen"
	"github.com/madcok-co/conduit/core/pkg/request"
)

// DispatchKind names which processor operation a scheduled request
// should be replayed through once it fires.
type DispatchKind string

const (
	DispatchSend    DispatchKind = "SEND"
	DispatchPublish DispatchKind = "PUBLISH"
	DispatchPost    DispatchKind = "POST"
)

// FireSchedulerRequest is the payload a Backend hands back to Fire when a
// scheduled entry becomes due.
type FireSchedulerRequest struct {
	ScheduleID string
	Kind       DispatchKind
	Request    *request.Request
}

// Fire is called by a Backend when a scheduled entry is due. The
// Scheduler's owner (the processor) supplies this at construction;
// Backends never call Send/Publish/Post directly.
type Fire func(ctx context.Context, req FireSchedulerRequest) error

// Backend schedules, reschedules, and cancels due-time callbacks. It
// knows nothing about request dispatch semantics — only when to call
// Fire next.
type Backend interface {
	Schedule(id string, due time.Time, req FireSchedulerRequest) error
	Reschedule(id string, due time.Time) error
	Cancel(id string) error
}

// Scheduler is the processor-facing façade: Schedule/Reschedule/Cancel
// over a pluggable Backend. The Backend is constructed with the Fire
// callback directly (see NewMemoryBackend) so the Scheduler itself never
// needs to know how firing is implemented.
type Scheduler struct {
	backend Backend
}

// New builds a Scheduler over backend.
func New(backend Backend) *Scheduler {
	return &Scheduler{backend: backend}
}

// Schedule registers req to fire at due under kind, returning the
// schedule id used by Reschedule/Cancel.
func (s *Scheduler) Schedule(due time.Time, kind DispatchKind, req *request.Request) (string, error) {
	id := idgen.New()
	fr := FireSchedulerRequest{ScheduleID: id, Kind: kind, Request: req}
	if err := s.backend.Schedule(id, due, fr); err != nil {
		return "", fmt.Errorf("scheduler: schedule %s: %w", id, err)
	}
	return id, nil
}

// Reschedule moves an already-scheduled entry to a new due time.
func (s *Scheduler) Reschedule(id string, due time.Time) error {
	return s.backend.Reschedule(id, due)
}

// Cancel removes a scheduled entry before it fires. Canceling an id that
// already fired or was never scheduled is a no-op.
func (s *Scheduler) Cancel(id string) error {
	return s.backend.Cancel(id)
}

// MemoryBackend is a time.AfterFunc-based Backend, for tests and the
// bundled examples — not durable across process restarts.
type MemoryBackend struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   Fire
	ctx    context.Context
}

// NewMemoryBackend returns a Backend that calls fire from a goroutine
// spawned by time.AfterFunc, using ctx for cancellation propagation into
// fire.
func NewMemoryBackend(ctx context.Context, fire Fire) *MemoryBackend {
	return &MemoryBackend{
		timers: make(map[string]*time.Timer),
		fire:   fire,
		ctx:    ctx,
	}
}

func (b *MemoryBackend) Schedule(id string, due time.Time, req FireSchedulerRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delay := time.Until(due)
	if delay < 0 {
		delay = 0
	}
	b.timers[id] = time.AfterFunc(delay, func() {
		b.fireAndForget(id, req)
	})
	return nil
}

func (b *MemoryBackend) fireAndForget(id string, req FireSchedulerRequest) {
	b.mu.Lock()
	delete(b.timers, id)
	b.mu.Unlock()
	_ = b.fire(b.ctx, req)
}

func (b *MemoryBackend) Reschedule(id string, due time.Time) error {
	b.mu.Lock()
	t, ok := b.timers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown schedule id %q", id)
	}
	t.Reset(time.Until(due))
	return nil
}

func (b *MemoryBackend) Cancel(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.timers[id]
	if !ok {
		return nil
	}
	t.Stop()
	delete(b.timers, id)
	return nil
}
