package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clubsonar/setlistd/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	venueJSON, err := marshalNullable(sess.Venue)
	if err != nil {
		return fmt.Errorf("failed to encode venue snapshot: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, dj_name, status, start_time, end_time, venue, corrected_venue, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.DJName, string(sess.Status), sess.StartTime,
		sess.EndTime, venueJSON, sess.CorrectedVenue, sess.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession transitions recording -> pending_sync and stamps the end time.
// It is a no-op for a session in any other state, so a duplicate stop (or a
// stop racing crash recovery) cannot regress a later status.
func (s *Store) EndSession(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE sessions SET status = 'pending_sync', end_time = ? WHERE id = ? AND status = 'recording'`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// MarkSessionSynced stamps the sync time along with the terminal status.
func (s *Store) MarkSessionSynced(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE sessions SET status = 'synced', synced_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session synced: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, dj_name, status, start_time, end_time, venue, corrected_venue, synced_at
		 FROM sessions WHERE id = ?`, id,
	)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	recs, err := s.listRecordings(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Recordings = recs

	return sess, nil
}

// ListPendingSessions returns sessions awaiting reconciliation in arrival
// order, recordings included.
func (s *Store) ListPendingSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, owner_id, dj_name, status, start_time, end_time, venue, corrected_venue, synced_at
		 FROM sessions WHERE status = 'pending_sync' ORDER BY start_time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	for _, sess := range sessions {
		recs, err := s.listRecordings(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Recordings = recs
	}

	return sessions, nil
}

// PendingSessionCount counts sessions (not recordings) awaiting sync. This is
// the aggregate the surrounding UI badges.
func (s *Store) PendingSessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status = 'pending_sync'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending sessions: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete recordings: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// PurgeSyncedBefore deletes synced sessions older than the cutoff, returning
// how many were removed. Unsynced sessions are never touched by retention.
func (s *Store) PurgeSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recordings WHERE session_id IN
		 (SELECT id FROM sessions WHERE status = 'synced' AND synced_at < ?)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("failed to purge recordings: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = 'synced' AND synced_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return int(n), nil
}

// SetCorrectedVenue stores a user-supplied venue correction. The original
// snapshot, including its qualification outcome, is left untouched.
func (s *Store) SetCorrectedVenue(ctx context.Context, id, venue string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE sessions SET corrected_venue = ? WHERE id = ?`, venue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set corrected venue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var status string
	var venueJSON sql.NullString
	var endTime, syncedAt sql.NullTime

	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.DJName, &status, &sess.StartTime,
		&endTime, &venueJSON, &sess.CorrectedVenue, &syncedAt); err != nil {
		return nil, err
	}

	sess.Status = models.SessionStatus(status)
	if endTime.Valid {
		sess.EndTime = &endTime.Time
	}
	if syncedAt.Valid {
		sess.SyncedAt = &syncedAt.Time
	}
	if venueJSON.Valid && venueJSON.String != "" {
		var snap models.VenueSnapshot
		if err := json.Unmarshal([]byte(venueJSON.String), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode venue snapshot: %w", err)
		}
		sess.Venue = &snap
	}

	return &sess, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case *models.VenueSnapshot:
		if val == nil {
			return sql.NullString{}, nil
		}
	case *models.TrackIdentification:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
