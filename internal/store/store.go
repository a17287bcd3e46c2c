// Package store provides sqlite-backed persistence for sessions,
// extracted acts, and captured media records. It implements the
// storage interfaces declared by the session, capture, and lifecycle
// packages.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed persistence layer using WAL mode.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates (if needed) and opens the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		owner_id        TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		participants    TEXT NOT NULL DEFAULT '[]',
		context_tag     TEXT NOT NULL DEFAULT 'voice_note',
		state           TEXT NOT NULL,
		active          INTEGER NOT NULL DEFAULT 0,
		started_at      TEXT NOT NULL,
		ended_at        TEXT,
		paused_at       TEXT,
		paused_total_ns INTEGER NOT NULL DEFAULT 0,
		summary         TEXT NOT NULL DEFAULT '',
		insights        TEXT NOT NULL DEFAULT '[]',
		degraded        INTEGER NOT NULL DEFAULT 0,
		archived        INTEGER NOT NULL DEFAULT 0,
		updated_at      TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_owner_active
		ON sessions(owner_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS acts (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL REFERENCES sessions(id),
		position          INTEGER NOT NULL,
		text              TEXT NOT NULL,
		category          TEXT NOT NULL,
		assignee          TEXT NOT NULL DEFAULT 'me',
		due_context       TEXT NOT NULL DEFAULT '',
		proposed_date     TEXT NOT NULL DEFAULT '',
		proposed_time     TEXT NOT NULL DEFAULT '',
		date_rationale    TEXT NOT NULL DEFAULT '',
		priority          INTEGER NOT NULL DEFAULT 3,
		micro_steps       TEXT NOT NULL DEFAULT '[]',
		success_criteria  TEXT NOT NULL DEFAULT '',
		motivation        TEXT NOT NULL DEFAULT '',
		confidence        INTEGER NOT NULL DEFAULT 0,
		method            TEXT NOT NULL DEFAULT 'llm',
		status            TEXT NOT NULL DEFAULT 'not_started',
		schedule_note     TEXT NOT NULL DEFAULT '',
		calendar_event_id TEXT NOT NULL DEFAULT '',
		linked_action_id  TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_acts_session ON acts(session_id, position);

	CREATE TABLE IF NOT EXISTS media (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES sessions(id),
		captured_at TEXT NOT NULL,
		state       TEXT NOT NULL,
		local_path  TEXT NOT NULL DEFAULT '',
		remote_id   TEXT NOT NULL DEFAULT '',
		size_bytes  INTEGER NOT NULL DEFAULT 0,
		sha256      TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_session ON media(session_id);
	CREATE INDEX IF NOT EXISTS idx_media_state ON media(state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
