// Package pipeline defines the shared vocabulary of the conversion pipeline:
// the stage ladder a session climbs, the worker kinds that serve it, and the
// request/response contract every domain worker implements. All other
// packages (registry, worker pool, session store, coordinator) speak these
// types; none of them interprets worker payloads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is the furthest completed step of a session. It only moves forward
// along the ladder below, except across an explicit reset.
type Stage string

const (
	StageEmpty     Stage = "empty"
	StageAnalyzed  Stage = "analyzed"
	StageConverted Stage = "converted"
	StageEvaluated Stage = "evaluated"
	StageEnriched  Stage = "enriched"
)

// stageOrder maps each stage to its position on the ladder.
var stageOrder = map[Stage]int{
	StageEmpty:     0,
	StageAnalyzed:  1,
	StageConverted: 2,
	StageEvaluated: 3,
	StageEnriched:  4,
}

// Stages lists the ladder in order, StageEmpty first.
func Stages() []Stage {
	return []Stage{StageEmpty, StageAnalyzed, StageConverted, StageEvaluated, StageEnriched}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Order returns the stage's position on the ladder (-1 for unknown stages).
func (s Stage) Order() int {
	n, ok := stageOrder[s]
	if !ok {
		return -1
	}
	return n
}

// AtLeast reports whether s has reached min on the ladder.
func (s Stage) AtLeast(min Stage) bool {
	return s.Order() >= min.Order() && s.Valid() && min.Valid()
}

// Next returns the stage after s. The terminal stage returns itself;
// the only way out of StageEnriched is a reset.
func (s Stage) Next() Stage {
	switch s {
	case StageEmpty:
		return StageAnalyzed
	case StageAnalyzed:
		return StageConverted
	case StageConverted:
		return StageEvaluated
	case StageEvaluated:
		return StageEnriched
	default:
		return s
	}
}

// ParseStage converts a wire string to a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Kind identifies one of the four long-lived domain workers.
type Kind string

const (
	KindAnalysis   Kind = "analysis"
	KindConversion Kind = "conversion"
	KindEvaluation Kind = "evaluation"
	KindEnrichment Kind = "enrichment"
)

// Kinds lists all worker kinds in pipeline order.
func Kinds() []Kind {
	return []Kind{KindAnalysis, KindConversion, KindEvaluation, KindEnrichment}
}

// Valid reports whether k is a known worker kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAnalysis, KindConversion, KindEvaluation, KindEnrichment:
		return true
	}
	return false
}

// ParseKind converts a wire string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown worker kind %q", s)
	}
	return k, nil
}

// Request is the structured input handed to a worker's single entry point.
// Slots carries the session's current slot values so a stage can consume the
// previous stage's handoff without re-deriving it.
type Request struct {
	Tool       string
	SessionKey string
	Params     map[string]any
	Slots      map[string]any
}

// Response is the structured output of a worker invocation. Payload is opaque
// to the coordinator; it is surfaced to the caller and written into session
// slots by the tool handler.
type Response struct {
	Payload map[string]any
}

// ErrWorkerFault marks a worker error as unrecoverable. A worker that
// returns an error wrapping this sentinel is parked as failed and stays
// unavailable until an explicit reset.
var ErrWorkerFault = errors.New("pipeline: unrecoverable worker fault")

// Worker is the single synchronous entry point every domain worker exposes.
// Implementations own their internal concurrency; the coordinator serializes
// invocations per kind.
type Worker interface {
	Kind() Kind
	Execute(ctx context.Context, req Request) (*Response, error)
}
