package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/capture"
)

// InsertMedia records a newly captured payload.
func (s *Store) InsertMedia(ctx context.Context, rec *capture.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (id, session_id, captured_at, state, local_path, remote_id,
			size_bytes, sha256, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.CapturedAt.UTC().Format(timeLayout), string(rec.State),
		rec.LocalPath, rec.RemoteID, rec.SizeBytes, rec.SHA256,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// GetMedia loads one media record by id.
func (s *Store) GetMedia(ctx context.Context, id string) (*capture.Record, error) {
	row := s.db.QueryRowContext(ctx, mediaSelect+` WHERE m.id = ?`, id)
	return scanMedia(row)
}

// UpdateMedia persists a media record's upload state.
func (s *Store) UpdateMedia(ctx context.Context, rec *capture.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE media SET state = ?, local_path = ?, remote_id = ?, updated_at = ?
		WHERE id = ?`,
		string(rec.State), rec.LocalPath, rec.RemoteID,
		time.Now().UTC().Format(timeLayout), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update media: %w", err)
	}
	return requireRow(res, capture.ErrNotFound)
}

// PendingMedia lists an owner's locally held, failed, or interrupted
// items, oldest first, so they can be retried once credentials are
// restored. Queued records are included: a crash mid-upload must not
// hide the payload from the retry surface.
func (s *Store) PendingMedia(ctx context.Context, ownerID string) ([]*capture.Record, error) {
	rows, err := s.db.QueryContext(ctx, mediaSelect+`
		JOIN sessions s ON s.id = m.session_id
		WHERE s.owner_id = ? AND m.state IN (?, ?, ?)
		ORDER BY m.captured_at`,
		ownerID, string(capture.StatePendingLocal), string(capture.StateQueued),
		string(capture.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("list pending media: %w", err)
	}
	defer rows.Close()

	var out []*capture.Record
	for rows.Next() {
		rec, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const mediaSelect = `
	SELECT m.id, m.session_id, m.captured_at, m.state, m.local_path, m.remote_id,
		m.size_bytes, m.sha256
	FROM media m`

func scanMedia(row rowScanner) (*capture.Record, error) {
	var (
		rec        capture.Record
		capturedAt string
		state      string
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &capturedAt, &state, &rec.LocalPath,
		&rec.RemoteID, &rec.SizeBytes, &rec.SHA256)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, capture.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media: %w", err)
	}

	rec.State = capture.UploadState(state)
	if rec.CapturedAt, err = time.Parse(timeLayout, capturedAt); err != nil {
		return nil, fmt.Errorf("parse captured_at: %w", err)
	}
	return &rec, nil
}

var _ capture.Records = (*Store)(nil)
