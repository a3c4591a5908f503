// Package session owns per-session pipeline state: the slot record carrying
// stage handoffs and the stage ladder position, guarded by compare-and-swap
// updates so racing invocations cannot corrupt a session. Two backends
// implement the same contract: MemStore (default) and SqlStore (sqlite).
package session

import (
	"fmt"
	"time"

	"crucible/internal/pipeline"
)

// Well-known slot names written by the built-in tools. Handlers may add
// their own; the store does not interpret slot values.
const (
	SlotLastAnalyzedDataset = "last_analyzed_dataset"
	SlotNormalizedMetadata  = "normalized_metadata"
	SlotCurrentOutputPath   = "current_output_path"
	SlotConversionStatus    = "conversion_status"
	SlotEvaluationReport    = "evaluation_report"
	SlotKnowledgeGraphRef   = "knowledge_graph_ref"
)

// Transition records one stage advance or reset, for status surfaces.
type Transition struct {
	From      pipeline.Stage `json:"from"`
	To        pipeline.Stage `json:"to"`
	Tool      string         `json:"tool"`
	Timestamp string         `json:"ts"`
}

// State is one session's pipeline record: the single source of truth for
// cross-stage handoff. Copies returned by stores are snapshots; mutation
// goes through Apply.
type State struct {
	Key       string         `json:"key"`
	Stage     pipeline.Stage `json:"stage"`
	Slots     map[string]any `json:"slots"`
	History   []Transition   `json:"history,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// Mutation is one atomic update: slot writes plus an optional stage advance.
// Advance must be the stage immediately after the expected stage; the ladder
// is strictly linear.
type Mutation struct {
	Tool    string
	Slots   map[string]any
	Advance pipeline.Stage // "" = slots only, no stage transition
}

// StageConflictError reports a lost compare-and-swap: the session moved
// between the caller's read and its write. The caller must re-read and
// retry at the now-current stage, never retry blindly.
type StageConflictError struct {
	Key      string
	Expected pipeline.Stage
	Current  pipeline.Stage
}

func (e *StageConflictError) Error() string {
	return fmt.Sprintf("session %s: stage is %s, expected %s", e.Key, e.Current, e.Expected)
}

// Store is the pipeline state store contract. Get creates an empty session
// on first access; Apply is compare-and-swap against expected; Reset returns
// a session to empty and is idempotent.
type Store interface {
	Get(key string) (*State, error)
	Apply(key string, mut Mutation, expected pipeline.Stage) (*State, error)
	Reset(key string) error
	Keys() ([]string, error)
	// PruneIdle drops sessions untouched for longer than idle and returns
	// how many were dropped.
	PruneIdle(idle time.Duration) (int, error)
	Close() error
}

// nowUTC returns the current UTC time as an ISO 8601 string. Sub-second
// precision matters: idle pruning compares these against a TTL cutoff.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// newState returns a fresh empty session record.
func newState(key string) *State {
	now := nowUTC()
	return &State{
		Key:       key,
		Stage:     pipeline.StageEmpty,
		Slots:     make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// checkAdvance validates a mutation's stage transition against the expected
// stage. Only the immediate next stage is reachable.
func checkAdvance(mut Mutation, expected pipeline.Stage) error {
	if mut.Advance == "" {
		return nil
	}
	if !mut.Advance.Valid() {
		return fmt.Errorf("unknown stage %q", mut.Advance)
	}
	if mut.Advance != expected.Next() || expected == mut.Advance {
		return fmt.Errorf("illegal stage transition %s -> %s", expected, mut.Advance)
	}
	return nil
}

// cloneState deep-copies the snapshot-visible parts of a state.
func cloneState(s *State) *State {
	cp := *s
	cp.Slots = make(map[string]any, len(s.Slots))
	for k, v := range s.Slots {
		cp.Slots[k] = v
	}
	cp.History = append([]Transition(nil), s.History...)
	return &cp
}
