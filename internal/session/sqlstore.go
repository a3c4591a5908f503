package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"crucible/internal/pipeline"
)

// DefaultDBPath is the default relative path for the sqlite session DB.
// Open() creates the parent directory.
const DefaultDBPath = ".crucible/sessions.db"

// SqlStore implements Store with sqlite, so sessions survive process
// restarts. CAS semantics are identical to MemStore: the guarded UPDATE
// matches on the expected stage and a zero row count is a conflict.
type SqlStore struct {
	db *sql.DB
}

var _ Store = (*SqlStore)(nil)

// Open opens or creates a sqlite DB at path and runs migrations. The parent
// directory (e.g. .crucible) is created if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers in-process, so concurrent CAS
	// applies resolve through the guarded UPDATE instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersionV1 {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Get returns a snapshot of the session, inserting an empty row on first
// access.
func (s *SqlStore) Get(key string) (*State, error) {
	st, err := s.load(key)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	fresh := newState(key)
	_, err = s.db.Exec(
		"INSERT INTO sessions(key, stage, slots, created_at, updated_at) VALUES(?,?,?,?,?) ON CONFLICT(key) DO NOTHING",
		key, string(fresh.Stage), "{}", fresh.CreatedAt, fresh.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}
	return s.load(key)
}

func (s *SqlStore) load(key string) (*State, error) {
	row := s.db.QueryRow("SELECT stage, slots, created_at, updated_at FROM sessions WHERE key = ?", key)
	var stage, slotsJSON, createdAt, updatedAt string
	if err := row.Scan(&stage, &slotsJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	slots := make(map[string]any)
	if err := json.Unmarshal([]byte(slotsJSON), &slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", key, err)
	}

	st := &State{
		Key:       key,
		Stage:     pipeline.Stage(stage),
		Slots:     slots,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	rows, err := s.db.Query(
		"SELECT from_stage, to_stage, tool, ts FROM transitions WHERE session_key = ? ORDER BY id", key)
	if err != nil {
		return nil, fmt.Errorf("load transitions for %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var tr Transition
		var from, to string
		if err := rows.Scan(&from, &to, &tr.Tool, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From, tr.To = pipeline.Stage(from), pipeline.Stage(to)
		st.History = append(st.History, tr)
	}
	return st, rows.Err()
}

// Apply performs the compare-and-swap update inside a transaction. The
// guarded UPDATE matches key and expected stage; zero rows means the session
// moved and the caller gets a StageConflictError carrying the current stage.
func (s *SqlStore) Apply(key string, mut Mutation, expected pipeline.Stage) (*State, error) {
	if err := checkAdvance(mut, expected); err != nil {
		return nil, err
	}

	// Ensure the row exists so a first-ever Apply against StageEmpty works.
	if _, err := s.Get(key); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin apply tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Read and merge inside the tx. A snapshot taken before Begin would let
	// two slots-only appliers overwrite each other's writes.
	var curStage, curSlots string
	if err := tx.QueryRow("SELECT stage, slots FROM sessions WHERE key = ?", key).Scan(&curStage, &curSlots); err != nil {
		return nil, fmt.Errorf("read session %s: %w", key, err)
	}
	if pipeline.Stage(curStage) != expected {
		return nil, &StageConflictError{Key: key, Expected: expected, Current: pipeline.Stage(curStage)}
	}

	slots := make(map[string]any)
	if err := json.Unmarshal([]byte(curSlots), &slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", key, err)
	}
	for k, v := range mut.Slots {
		slots[k] = v
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}

	newStage := expected
	if mut.Advance != "" {
		newStage = mut.Advance
	}
	now := nowUTC()

	res, err := tx.Exec(
		"UPDATE sessions SET stage = ?, slots = ?, updated_at = ? WHERE key = ? AND stage = ?",
		string(newStage), string(slotsJSON), now, key, string(expected),
	)
	if err != nil {
		return nil, fmt.Errorf("apply session %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("apply rows affected: %w", err)
	}
	if n == 0 {
		_ = tx.Rollback()
		current, loadErr := s.load(key)
		if loadErr != nil {
			return nil, fmt.Errorf("session %s vanished during apply: %w", key, loadErr)
		}
		return nil, &StageConflictError{Key: key, Expected: expected, Current: current.Stage}
	}

	if mut.Advance != "" {
		if _, err := tx.Exec(
			"INSERT INTO transitions(session_key, from_stage, to_stage, tool, ts) VALUES(?,?,?,?,?)",
			key, string(expected), string(mut.Advance), mut.Tool, now,
		); err != nil {
			return nil, fmt.Errorf("record transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply: %w", err)
	}
	return s.load(key)
}

// Reset returns the session to a fresh empty record, dropping slots and
// history. Resetting an absent session creates it empty; the call is
// idempotent.
func (s *SqlStore) Reset(key string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	if _, err := tx.Exec(
		"INSERT INTO sessions(key, stage, slots, created_at, updated_at) VALUES(?,?,?,?,?) "+
			"ON CONFLICT(key) DO UPDATE SET stage = excluded.stage, slots = excluded.slots, updated_at = excluded.updated_at",
		key, string(pipeline.StageEmpty), "{}", now, now,
	); err != nil {
		return fmt.Errorf("reset session %s: %w", key, err)
	}
	if _, err := tx.Exec("DELETE FROM transitions WHERE session_key = ?", key); err != nil {
		return fmt.Errorf("clear transitions for %s: %w", key, err)
	}
	return tx.Commit()
}

// Keys returns all known session keys.
func (s *SqlStore) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM sessions ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan session key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PruneIdle drops sessions whose updated_at is older than idle. Timestamps
// are compared as parsed times, not strings: RFC 3339 strings with variable
// fractional digits do not sort lexicographically.
func (s *SqlStore) PruneIdle(idle time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idle)
	rows, err := s.db.Query("SELECT key, updated_at FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key, updatedAt string
		if err := rows.Scan(&key, &updatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan session for prune: %w", err)
		}
		updated, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err == nil && updated.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	for _, key := range stale {
		if _, err := s.db.Exec("DELETE FROM sessions WHERE key = ?", key); err != nil {
			return 0, fmt.Errorf("prune session %s: %w", key, err)
		}
	}
	// Foreign keys are off by default in sqlite; sweep orphans explicitly.
	if _, err := s.db.Exec("DELETE FROM transitions WHERE session_key NOT IN (SELECT key FROM sessions)"); err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	return len(stale), nil
}

// Close closes the underlying database.
func (s *SqlStore) Close() error { return s.db.Close() }
