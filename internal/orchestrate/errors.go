package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crucible/internal/pipeline"
	"crucible/internal/registry"
	"crucible/internal/session"
	"crucible/internal/worker"
)

// Kind is the machine-readable error taxonomy surfaced to adapters. Adapters
// map kinds to their wire status codes and must not swallow them.
type Kind string

const (
	KindNone              Kind = ""
	KindDuplicateTool     Kind = "duplicate_tool"
	KindUnknownTool       Kind = "unknown_tool"
	KindInvalidParameters Kind = "invalid_parameters"
	KindWorkerInit        Kind = "worker_init"
	KindWorkerUnavailable Kind = "worker_unavailable"
	KindStagePrecondition Kind = "stage_precondition"
	KindStageConflict     Kind = "stage_conflict"
	KindHandler           Kind = "handler_error"
	KindCancelled         Kind = "cancelled"
)

// InvalidParametersError carries every schema violation found, not just the
// first, so a caller sees the complete set of problems in one round trip.
type InvalidParametersError struct {
	Tool       string
	Violations []string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.Tool, strings.Join(e.Violations, "; "))
}

// StagePreconditionError reports a tool invoked before its required stage
// was reached. An ordering error on the caller's side; never retried blindly.
type StagePreconditionError struct {
	Tool     string
	Required pipeline.Stage
	Current  pipeline.Stage
}

func (e *StagePreconditionError) Error() string {
	return fmt.Sprintf("tool %s requires stage %s, session is at %s", e.Tool, e.Required, e.Current)
}

// HandlerError wraps any fault from domain logic. Always recoverable at the
// coordinator boundary; it never propagates as a process fault.
type HandlerError struct {
	Tool string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %s handler: %v", e.Tool, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// KindOf maps an error from any core package to its taxonomy kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		dup     *registry.DuplicateToolError
		unknown *registry.UnknownToolError
		params  *InvalidParametersError
		initE   *worker.InitError
		unavail *worker.UnavailableError
		precond *StagePreconditionError
		stale   *session.StageConflictError
		handler *HandlerError
	)
	switch {
	case errors.As(err, &dup):
		return KindDuplicateTool
	case errors.As(err, &unknown):
		return KindUnknownTool
	case errors.As(err, &params):
		return KindInvalidParameters
	case errors.As(err, &initE):
		return KindWorkerInit
	case errors.As(err, &unavail):
		return KindWorkerUnavailable
	case errors.As(err, &precond):
		return KindStagePrecondition
	case errors.As(err, &stale):
		return KindStageConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &handler):
		return KindHandler
	default:
		return KindHandler
	}
}
