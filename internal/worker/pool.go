// Package worker owns the four long-lived domain workers. The pool constructs
// them atomically at startup, serializes use per kind, and parks a kind as
// failed after an unrecoverable fault until an explicit reset.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crucible/internal/logging"
	"crucible/internal/pipeline"
)

// Status tracks a handle's lifecycle.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	StatusBusy          Status = "busy"
	StatusFailed        Status = "failed"
)

// Outcome is reported on release and decides the handle's next status.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"        // back to ready
	OutcomeCancelled Outcome = "cancelled" // caller gave up; worker is fine
	OutcomeFault     Outcome = "fault"     // unrecoverable; park as failed
)

// InitError is fatal at startup: the pool refuses to exist with a missing
// worker.
type InitError struct {
	Kind pipeline.Kind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s worker: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// UnavailableError is transient from the caller's point of view: the kind is
// busy past the acquire timeout, or parked as failed.
type UnavailableError struct {
	Kind   pipeline.Kind
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s worker unavailable: %s", e.Kind, e.Reason)
}

// Factory constructs one domain worker. Factories run concurrently during
// Initialize; any failure aborts the whole pool.
type Factory func(ctx context.Context) (pipeline.Worker, error)

// Handle pairs a worker instance with its serialization state. The sem
// channel holds one token; owning the token is owning the worker.
type Handle struct {
	kind   pipeline.Kind
	worker pipeline.Worker
	sem    chan struct{}

	mu     sync.Mutex
	status Status
}

// Kind returns the handle's worker kind.
func (h *Handle) Kind() pipeline.Kind { return h.kind }

// Worker returns the underlying worker instance.
func (h *Handle) Worker() pipeline.Worker { return h.worker }

// Status returns the handle's current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// Pool holds exactly one handle per worker kind.
type Pool struct {
	handles        map[pipeline.Kind]*Handle
	acquireTimeout time.Duration
}

// DefaultAcquireTimeout bounds the wait for a busy worker so a stuck handler
// cannot starve every other invocation of that kind.
const DefaultAcquireTimeout = 30 * time.Second

// Initialize constructs one worker per kind from the factory map. Either all
// kinds come up ready or Initialize fails with an InitError and no pool
// exists; partial pools are never returned.
func Initialize(ctx context.Context, factories map[pipeline.Kind]Factory, acquireTimeout time.Duration) (*Pool, error) {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	for _, k := range pipeline.Kinds() {
		if factories[k] == nil {
			return nil, &InitError{Kind: k, Err: fmt.Errorf("no factory configured")}
		}
	}

	log := logging.New("worker-pool")
	handles := make(map[pipeline.Kind]*Handle, len(factories))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, k := range pipeline.Kinds() {
		g.Go(func() error {
			w, err := factories[k](gctx)
			if err != nil {
				return &InitError{Kind: k, Err: err}
			}
			if w.Kind() != k {
				return &InitError{Kind: k, Err: fmt.Errorf("factory produced %s worker", w.Kind())}
			}
			h := &Handle{kind: k, worker: w, sem: make(chan struct{}, 1), status: StatusReady}
			h.sem <- struct{}{}
			mu.Lock()
			handles[k] = h
			mu.Unlock()
			log.Debug("worker ready", "kind", string(k))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("worker pool initialized", "kinds", len(handles), "acquire_timeout", acquireTimeout.String())
	return &Pool{handles: handles, acquireTimeout: acquireTimeout}, nil
}

// Acquire takes exclusive ownership of the kind's handle, blocking while
// another invocation holds it. The wait is bounded by the pool's acquire
// timeout and by ctx; a failed kind is rejected immediately.
func (p *Pool) Acquire(ctx context.Context, kind pipeline.Kind) (*Handle, error) {
	h, ok := p.handles[kind]
	if !ok {
		return nil, &UnavailableError{Kind: kind, Reason: "no such worker kind"}
	}
	if h.Status() == StatusFailed {
		return nil, &UnavailableError{Kind: kind, Reason: "worker failed; reset required"}
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case <-h.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &UnavailableError{Kind: kind, Reason: fmt.Sprintf("busy past %s", p.acquireTimeout)}
	}

	// The token may have been freed by a release-to-failed racing with us.
	if h.Status() == StatusFailed {
		h.sem <- struct{}{}
		return nil, &UnavailableError{Kind: kind, Reason: "worker failed; reset required"}
	}
	h.setStatus(StatusBusy)
	return h, nil
}

// Release returns the handle after an invocation. OutcomeFault parks the
// kind as failed; subsequent Acquire calls fail until Reset.
func (p *Pool) Release(kind pipeline.Kind, outcome Outcome) {
	h, ok := p.handles[kind]
	if !ok {
		return
	}
	switch outcome {
	case OutcomeFault:
		h.setStatus(StatusFailed)
		logging.New("worker-pool").Warn("worker parked as failed", "kind", string(kind))
	default:
		h.setStatus(StatusReady)
	}
	select {
	case h.sem <- struct{}{}:
	default:
		// Token already present: release without matching acquire.
	}
}

// Reset returns a failed kind to ready. The admin hook behind the
// coordinator's reset_worker operation.
func (p *Pool) Reset(kind pipeline.Kind) error {
	h, ok := p.handles[kind]
	if !ok {
		return &UnavailableError{Kind: kind, Reason: "no such worker kind"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusBusy {
		return fmt.Errorf("reset %s: worker is busy", kind)
	}
	if h.status == StatusFailed {
		logging.New("worker-pool").Info("worker reset", "kind", string(kind))
	}
	h.status = StatusReady
	return nil
}

// Statuses reports the current status per kind, for status surfaces.
func (p *Pool) Statuses() map[pipeline.Kind]Status {
	out := make(map[pipeline.Kind]Status, len(p.handles))
	for k, h := range p.handles {
		out[k] = h.Status()
	}
	return out
}
