// Package store is the durable local queue backing offline sessions. It must
// survive process restarts: every status transition is a transactional write,
// and a session left in "recording" by a crash is adopted as pending_sync the
// next time the store is opened, so captured audio is never silently lost.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	conn *sql.DB
}

func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn}

	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.recoverAbandoned(); err != nil {
		return nil, fmt.Errorf("failed to recover abandoned sessions: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		dj_name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		venue TEXT,
		corrected_venue TEXT NOT NULL DEFAULT '',
		synced_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		sample_rate INTEGER NOT NULL,
		channels INTEGER NOT NULL,
		result TEXT,
		notified INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_session ON recordings(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`

	_, err := s.conn.Exec(query)
	return err
}

// recoverAbandoned adopts sessions a previous process left in "recording",
// mid-sync, or errored. No controller is running for them anymore, so they
// become eligible for sync instead of being stranded.
func (s *Store) recoverAbandoned() error {
	res, err := s.conn.Exec(
		`UPDATE sessions SET status = 'pending_sync', end_time = COALESCE(end_time, CURRENT_TIMESTAMP)
		 WHERE status IN ('recording', 'syncing', 'error')`,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[STORE] recovered %d abandoned session(s) as pending_sync", n)
	}
	return nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}
