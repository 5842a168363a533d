package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clubsonar/setlistd/internal/models"
)

var ErrRecordingNotFound = errors.New("recording not found")

func (s *Store) AppendRecording(ctx context.Context, rec *models.Recording) error {
	resultJSON, err := marshalNullable(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode recognition result: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO recordings (id, session_id, status, captured_at, payload, sample_rate, channels, result, notified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, string(rec.Status), rec.CapturedAt, rec.Payload,
		rec.SampleRate, rec.Channels, resultJSON, rec.Notified,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

// UpdateRecordingStatus transitions a recording and, for recognized captures,
// attaches the result and drops the raw payload in the same write.
func (s *Store) UpdateRecordingStatus(ctx context.Context, id string, status models.RecordingStatus, result *models.TrackIdentification) error {
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return fmt.Errorf("failed to encode recognition result: %w", err)
	}

	var res sql.Result
	if status == models.RecordingSynced {
		res, err = s.conn.ExecContext(ctx,
			`UPDATE recordings SET status = ?, result = COALESCE(?, result), payload = '' WHERE id = ?`,
			string(status), resultJSON, id,
		)
	} else {
		res, err = s.conn.ExecContext(ctx,
			`UPDATE recordings SET status = ?, result = COALESCE(?, result) WHERE id = ?`,
			string(status), resultJSON, id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update recording: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

// MarkNotified records a successful notification dispatch. The marker is
// durable so reconciliation replay never re-notifies a track that was already
// acted on live.
func (s *Store) MarkNotified(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE recordings SET notified = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark recording notified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

// NotifiedTitles returns the titles of tracks a session already notified.
func (s *Store) NotifiedTitles(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT result FROM recordings WHERE session_id = ? AND notified = 1 AND result IS NOT NULL`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notified recordings: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var track models.TrackIdentification
		if err := json.Unmarshal([]byte(resultJSON), &track); err != nil {
			continue
		}
		titles = append(titles, track.Title)
	}
	return titles, rows.Err()
}

func (s *Store) listRecordings(ctx context.Context, sessionID string) ([]models.Recording, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, session_id, status, captured_at, payload, sample_rate, channels, result, notified
		 FROM recordings WHERE session_id = ? ORDER BY captured_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		var status string
		var resultJSON sql.NullString

		if err := rows.Scan(&rec.ID, &rec.SessionID, &status, &rec.CapturedAt, &rec.Payload,
			&rec.SampleRate, &rec.Channels, &resultJSON, &rec.Notified); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}

		rec.Status = models.RecordingStatus(status)
		if resultJSON.Valid && resultJSON.String != "" {
			var track models.TrackIdentification
			if err := json.Unmarshal([]byte(resultJSON.String), &track); err != nil {
				return nil, fmt.Errorf("failed to decode recognition result: %w", err)
			}
			rec.Result = &track
		}

		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
