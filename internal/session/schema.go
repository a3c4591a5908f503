package session

// schemaVersionV1 is the current sqlite schema version.
const schemaVersionV1 = 1

// schemaV1 creates the session tables. Slots are stored as a JSON blob; the
// stage column is the compare-and-swap guard.
const schemaV1 = `
CREATE TABLE schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE sessions (
	key        TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	slots      TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL REFERENCES sessions(key) ON DELETE CASCADE,
	from_stage  TEXT NOT NULL,
	to_stage    TEXT NOT NULL,
	tool        TEXT NOT NULL DEFAULT '',
	ts          TEXT NOT NULL
);

CREATE INDEX idx_transitions_session ON transitions(session_key);
`
