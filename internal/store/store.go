// Package store is the sqlite-backed run record store. One database holds
// run records with their citations, memory write-backs, policy decisions,
// planner audit events and per-session locked facts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// timeFormat sorts lexicographically, so range queries work on TEXT columns
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// schema is executed on every open (idempotent via IF NOT EXISTS)
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    input       TEXT NOT NULL,
    intent      TEXT,
    plan        TEXT,
    execution   TEXT,
    grounding   TEXT,
    reflection  TEXT,
    output      TEXT NOT NULL,
    success     INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id, created_at);

CREATE TABLE IF NOT EXISTS citations (
    id          TEXT NOT NULL,
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    type        TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    source_text TEXT NOT NULL DEFAULT '',
    confidence  REAL NOT NULL,
    metadata    TEXT DEFAULT '{}',
    PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS memories (
    id              TEXT PRIMARY KEY,
    run_id          TEXT DEFAULT '',
    user_id         TEXT NOT NULL,
    dimension       TEXT NOT NULL,
    text            TEXT NOT NULL,
    metadata        TEXT DEFAULT '{}',
    relevance_score REAL NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    accessed_at     TEXT,
    expires_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, dimension, created_at);

CREATE TABLE IF NOT EXISTS policy_decisions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step_id    TEXT NOT NULL,
    policy_key TEXT DEFAULT '',
    decision   TEXT NOT NULL,
    reason     TEXT DEFAULT '',
    decided_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    rule       TEXT NOT NULL,
    action     TEXT NOT NULL,
    user_id    TEXT DEFAULT '',
    session_id TEXT DEFAULT '',
    details    TEXT DEFAULT '{}',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at);

CREATE TABLE IF NOT EXISTS locked_facts (
    session_id TEXT NOT NULL,
    fact_key   TEXT NOT NULL,
    value      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (session_id, fact_key)
);
`

// Store wraps the sqlite database
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path with WAL enabled and the
// schema applied
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		path = "cogito.db"
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
