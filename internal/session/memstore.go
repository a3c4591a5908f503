package session

import (
	"sync"
	"time"

	"crucible/internal/pipeline"
)

// memEntry wraps one session with its own lock so unrelated sessions never
// contend on Apply.
type memEntry struct {
	mu    sync.Mutex
	state *State
}

// MemStore is the in-memory Store. The outer lock only guards the session
// map; compare-and-swap runs under the per-entry lock.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*memEntry)}
}

func (s *MemStore) entry(key string) *memEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &memEntry{state: newState(key)}
	s.entries[key] = e
	return e
}

// Get returns a snapshot of the session, creating an empty one on first
// access.
func (s *MemStore) Get(key string) (*State, error) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state), nil
}

// Apply performs the compare-and-swap update. When the session's stage does
// not equal expected, nothing is written and a StageConflictError reports
// the current stage.
func (s *MemStore) Apply(key string, mut Mutation, expected pipeline.Stage) (*State, error) {
	if err := checkAdvance(mut, expected); err != nil {
		return nil, err
	}

	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Stage != expected {
		return nil, &StageConflictError{Key: key, Expected: expected, Current: e.state.Stage}
	}

	for k, v := range mut.Slots {
		e.state.Slots[k] = v
	}
	if mut.Advance != "" {
		e.state.History = append(e.state.History, Transition{
			From:      e.state.Stage,
			To:        mut.Advance,
			Tool:      mut.Tool,
			Timestamp: nowUTC(),
		})
		e.state.Stage = mut.Advance
	}
	e.state.UpdatedAt = nowUTC()
	return cloneState(e.state), nil
}

// Reset returns the session to a fresh empty record. Resetting an absent or
// already-empty session is a no-op, not an error.
func (s *MemStore) Reset(key string) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = newState(key)
	return nil
}

// Keys returns all known session keys.
func (s *MemStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// PruneIdle drops sessions whose last update is older than idle.
func (s *MemStore) PruneIdle(idle time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for k, e := range s.entries {
		e.mu.Lock()
		updated, err := time.Parse(time.RFC3339Nano, e.state.UpdatedAt)
		stale := err == nil && updated.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.entries, k)
			pruned++
		}
	}
	return pruned, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }
