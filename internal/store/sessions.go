package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/session"
)

const timeLayout = time.RFC3339Nano

// CreateSession inserts a new session row. The partial unique index on
// (owner_id) WHERE active=1 enforces the one-active-session-per-owner
// invariant at the storage boundary; a violation maps to
// session.ErrSessionConflict.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	participants, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_id, title, participants, context_tag, state, active,
			started_at, paused_total_ns, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.Title, string(participants), string(sess.ContextTag),
		string(sess.State), boolToInt(sess.Active),
		sess.StartedAt.UTC().Format(timeLayout), int64(sess.PausedTotal),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		// Only the partial index carries the one-active-session meaning;
		// other unique violations (a duplicate id) are plain storage errors.
		if strings.Contains(err.Error(), "idx_sessions_owner_active") {
			return session.ErrSessionConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, participants, context_tag, state, active,
			started_at, ended_at, paused_at, paused_total_ns, summary, insights,
			degraded, archived
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession persists the mutable fields of a session.
func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, active = ?, ended_at = ?, paused_at = ?, paused_total_ns = ?,
			summary = ?, degraded = ?, updated_at = ?
		WHERE id = ?`,
		string(sess.State), boolToInt(sess.Active),
		nullableTime(sess.EndedAt), nullableTime(sess.PausedAt), int64(sess.PausedTotal),
		sess.Summary, boolToInt(sess.Degraded),
		time.Now().UTC().Format(timeLayout), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRow(res, session.ErrNotFound)
}

// ListSessions returns the owner's sessions, newest first. Archived
// sessions are included; they are never hard-deleted.
func (s *Store) ListSessions(ctx context.Context, ownerID string) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, participants, context_tag, state, active,
			started_at, ended_at, paused_at, paused_total_ns, summary, insights,
			degraded, archived
		FROM sessions WHERE owner_id = ? ORDER BY started_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ArchiveSession flags a session archived.
func (s *Store) ArchiveSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET archived = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return requireRow(res, session.ErrNotFound)
}

// SaveExtraction persists the extraction outcome (session summary,
// insights, degraded flag, final state) and the extracted acts in one
// transaction, preserving act order.
func (s *Store) SaveExtraction(ctx context.Context, sess *session.Session, acts []act.Act) error {
	insights, err := json.Marshal(sess.Insights)
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET state = ?, active = ?, summary = ?, insights = ?, degraded = ?, updated_at = ?
		WHERE id = ?`,
		string(sess.State), boolToInt(sess.Active), sess.Summary, string(insights),
		boolToInt(sess.Degraded), now, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if err := requireRow(res, session.ErrNotFound); err != nil {
		return err
	}

	for i, a := range acts {
		steps, err := json.Marshal(a.MicroSteps)
		if err != nil {
			return fmt.Errorf("marshal micro steps: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO acts (id, session_id, position, text, category, assignee,
				due_context, proposed_date, proposed_time, date_rationale, priority,
				micro_steps, success_criteria, motivation, confidence, method, status,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SessionID, i, a.Text, string(a.Category), a.Assignee,
			a.DueContext, a.ProposedDate, a.ProposedTime, a.DateRationale, a.Priority,
			string(steps), a.SuccessCriteria, a.Motivation, a.Confidence,
			string(a.Method), string(a.Status), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert act: %w", err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess                       session.Session
		participants, insights     string
		contextTag, state          string
		active, degraded, archived int
		startedAt                  string
		endedAt, pausedAt          sql.NullString
		pausedTotalNS              int64
	)
	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &participants, &contextTag,
		&state, &active, &startedAt, &endedAt, &pausedAt, &pausedTotalNS,
		&sess.Summary, &insights, &degraded, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(participants), &sess.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(insights), &sess.Insights); err != nil {
		return nil, fmt.Errorf("unmarshal insights: %w", err)
	}
	sess.ContextTag = session.ContextTag(contextTag)
	sess.State = session.State(state)
	sess.Active = active == 1
	sess.Degraded = degraded == 1
	sess.Archived = archived == 1
	sess.PausedTotal = time.Duration(pausedTotalNS)

	if sess.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if sess.EndedAt, err = parseNullableTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	if sess.PausedAt, err = parseNullableTime(pausedAt); err != nil {
		return nil, fmt.Errorf("parse paused_at: %w", err)
	}
	return &sess, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// Ensure the interface is implemented.
var _ session.Store = (*Store)(nil)
