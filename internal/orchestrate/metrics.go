package orchestrate

import "sync/atomic"

// Metrics counts coordinator events. Counters only ever increase; Snapshot
// is for status surfaces and test instrumentation.
type Metrics struct {
	Lookups           atomic.Int64
	UnknownTools      atomic.Int64
	InvalidParams     atomic.Int64
	PreconditionFails atomic.Int64
	Acquisitions      atomic.Int64
	AcquireFailures   atomic.Int64
	HandlerRuns       atomic.Int64
	HandlerErrors     atomic.Int64
	StageConflicts    atomic.Int64
	Completed         atomic.Int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"lookups":            m.Lookups.Load(),
		"unknown_tools":      m.UnknownTools.Load(),
		"invalid_params":     m.InvalidParams.Load(),
		"precondition_fails": m.PreconditionFails.Load(),
		"acquisitions":       m.Acquisitions.Load(),
		"acquire_failures":   m.AcquireFailures.Load(),
		"handler_runs":       m.HandlerRuns.Load(),
		"handler_errors":     m.HandlerErrors.Load(),
		"stage_conflicts":    m.StageConflicts.Load(),
		"completed":          m.Completed.Load(),
	}
}
