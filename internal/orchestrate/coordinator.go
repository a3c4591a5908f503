// Package orchestrate is the coordination core: it resolves tool invocations
// against the registry, enforces stage preconditions against the session
// store, serializes worker use through the pool, and applies state handoffs
// with compare-and-swap. Domain logic runs only inside tool handlers; the
// coordinator never interprets their payloads.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crucible/internal/logging"
	"crucible/internal/pipeline"
	"crucible/internal/registry"
	"crucible/internal/session"
	"crucible/internal/worker"
)

// Status of one invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// InvocationResult is the single return shape of Invoke. Failures are data,
// not faults: ErrorKind and Message are set on error, Payload on success,
// and Stage always reflects the session's stage after the invocation.
type InvocationResult struct {
	Status     Status         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	ErrorKind  Kind           `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	Violations []string       `json:"violations,omitempty"`
	Stage      pipeline.Stage `json:"stage"`
}

// Coordinator wires the registry, worker pool, and session store together.
// It serves concurrent invocations; serialization happens per worker kind in
// the pool and per session in the store, never globally.
type Coordinator struct {
	reg     *registry.Registry
	pool    *worker.Pool
	store   session.Store
	log     *slog.Logger
	metrics Metrics
}

// New builds a coordinator over an initialized pool and store.
func New(reg *registry.Registry, pool *worker.Pool, store session.Store) *Coordinator {
	return &Coordinator{
		reg:   reg,
		pool:  pool,
		store: store,
		log:   logging.New("coordinator"),
	}
}

// Metrics exposes the instrumentation counters.
func (c *Coordinator) Metrics() *Metrics { return &c.metrics }

// ListTools returns the registry contents sorted by name.
func (c *Coordinator) ListTools() []*registry.Descriptor { return c.reg.List() }

// State returns a snapshot of the session's pipeline state.
func (c *Coordinator) State(sessionKey string) (*session.State, error) {
	return c.store.Get(sessionKey)
}

// Reset clears a session back to the empty stage. Idempotent.
func (c *Coordinator) Reset(sessionKey string) error {
	c.log.Info("session reset", "session", sessionKey)
	return c.store.Reset(sessionKey)
}

// ResetWorker returns a failed worker kind to ready.
func (c *Coordinator) ResetWorker(kind pipeline.Kind) error {
	c.log.Info("worker reset requested", "kind", string(kind))
	return c.pool.Reset(kind)
}

// WorkerStatuses reports the pool's per-kind status.
func (c *Coordinator) WorkerStatuses() map[pipeline.Kind]worker.Status {
	return c.pool.Statuses()
}

// Invoke runs one tool against one session. Every failure along the way is
// captured and returned as data; nothing propagates as an uncaught fault.
func (c *Coordinator) Invoke(ctx context.Context, sessionKey, toolName string, params map[string]any) *InvocationResult {
	// 1. Resolve the tool. No worker or state is touched for unknown names.
	c.metrics.Lookups.Add(1)
	desc, err := c.reg.Lookup(toolName)
	if err != nil {
		c.metrics.UnknownTools.Add(1)
		return c.fail(sessionKey, toolName, pipeline.StageEmpty, err)
	}

	// 2. Validate parameters, collecting every violation. Still before any
	// state or worker side effect.
	validated, paramsErr := ValidateParams(desc, params)
	if paramsErr != nil {
		c.metrics.InvalidParams.Add(1)
		res := c.fail(sessionKey, toolName, pipeline.StageEmpty, paramsErr)
		res.Violations = paramsErr.Violations
		return res
	}

	// 3. Check the stage precondition against the current session state.
	state, err := c.store.Get(sessionKey)
	if err != nil {
		return c.fail(sessionKey, toolName, pipeline.StageEmpty, fmt.Errorf("read session state: %w", err))
	}
	if desc.Requires != "" && !state.Stage.AtLeast(desc.Requires) {
		c.metrics.PreconditionFails.Add(1)
		return c.fail(sessionKey, toolName, state.Stage, &StagePreconditionError{
			Tool:     toolName,
			Required: desc.Requires,
			Current:  state.Stage,
		})
	}

	// 4. Acquire the worker kind the tool needs. A cheap cancellation point:
	// nothing has happened yet if ctx is already done.
	var handle *worker.Handle
	if desc.Worker != "" {
		handle, err = c.pool.Acquire(ctx, desc.Worker)
		if err != nil {
			c.metrics.AcquireFailures.Add(1)
			return c.fail(sessionKey, toolName, state.Stage, err)
		}
		c.metrics.Acquisitions.Add(1)
	}

	// 5. Execute the handler. Panics and errors are contained here; the
	// worker is always released with an outcome matching what happened.
	call := &registry.Call{
		SessionKey: sessionKey,
		Params:     validated,
		Stage:      state.Stage,
		Slots:      state.Slots,
	}
	if handle != nil {
		call.Worker = handle.Worker()
	}

	c.metrics.HandlerRuns.Add(1)
	outcome, handlerErr := c.runHandler(ctx, desc, call)

	if handle != nil {
		c.pool.Release(handle.Kind(), releaseOutcome(ctx, handlerErr))
	}

	if handlerErr != nil {
		c.metrics.HandlerErrors.Add(1)
		if KindOf(handlerErr) == KindCancelled {
			return c.fail(sessionKey, toolName, state.Stage, handlerErr)
		}
		return c.fail(sessionKey, toolName, state.Stage, &HandlerError{Tool: toolName, Err: handlerErr})
	}

	// 6. Apply the handler's slot writes and stage transition atomically.
	// Losing the compare-and-swap surfaces a conflict even though the
	// handler succeeded; the caller must re-read and retry.
	finalStage := state.Stage
	if outcome != nil && (len(outcome.Slots) > 0 || outcome.Advance != "") {
		applied, applyErr := c.store.Apply(sessionKey, session.Mutation{
			Tool:    toolName,
			Slots:   outcome.Slots,
			Advance: outcome.Advance,
		}, state.Stage)
		if applyErr != nil {
			var conflict *session.StageConflictError
			if errors.As(applyErr, &conflict) {
				c.metrics.StageConflicts.Add(1)
				// Report the now-current stage so the caller can retry there.
				return c.fail(sessionKey, toolName, conflict.Current, applyErr)
			}
			return c.fail(sessionKey, toolName, state.Stage, applyErr)
		}
		finalStage = applied.Stage
	}

	c.metrics.Completed.Add(1)
	c.log.Info("tool invoked",
		"session", sessionKey, "tool", toolName, "stage", string(finalStage))

	res := &InvocationResult{Status: StatusSuccess, Stage: finalStage}
	if outcome != nil {
		res.Payload = outcome.Payload
	}
	return res
}

// runHandler executes the tool handler with panic containment.
func (c *Coordinator) runHandler(ctx context.Context, desc *registry.Descriptor, call *registry.Call) (outcome *registry.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("handler panic: %v", r)
			c.log.Error("handler panic recovered", "tool", desc.Name, "panic", fmt.Sprint(r))
		}
	}()
	return desc.Handler(ctx, call)
}

// releaseOutcome decides how the worker goes back to the pool: cancelled
// invocations release the worker as cancelled so it returns to ready instead
// of leaking busy; unrecoverable faults park it as failed.
func releaseOutcome(ctx context.Context, handlerErr error) worker.Outcome {
	switch {
	case handlerErr == nil:
		return worker.OutcomeOK
	case errors.Is(handlerErr, pipeline.ErrWorkerFault):
		return worker.OutcomeFault
	case ctx.Err() != nil:
		return worker.OutcomeCancelled
	default:
		return worker.OutcomeOK
	}
}

// fail builds an error result carrying the taxonomy kind. stage is whatever
// the coordinator knew at failure time; failures before the state read
// report StageEmpty and touch no session.
func (c *Coordinator) fail(sessionKey, toolName string, stage pipeline.Stage, err error) *InvocationResult {
	kind := KindOf(err)
	c.log.Warn("invocation failed",
		"session", sessionKey, "tool", toolName, "kind", string(kind), "error", err.Error())
	return &InvocationResult{
		Status:    StatusError,
		ErrorKind: kind,
		Message:   err.Error(),
		Stage:     stage,
	}
}
