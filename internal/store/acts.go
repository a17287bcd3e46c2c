package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

// ErrActNotFound is returned when the act id is unknown.
var ErrActNotFound = errors.New("act not found")

// GetAct loads one act by id.
func (s *Store) GetAct(ctx context.Context, id string) (*act.Act, error) {
	row := s.db.QueryRowContext(ctx, actSelect+` WHERE id = ?`, id)
	return scanAct(row)
}

// ListActs returns a session's acts in extraction order.
func (s *Store) ListActs(ctx context.Context, sessionID string) ([]*act.Act, error) {
	rows, err := s.db.QueryContext(ctx, actSelect+` WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list acts: %w", err)
	}
	defer rows.Close()

	var out []*act.Act
	for rows.Next() {
		a, err := scanAct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAct persists the mutable fields of an act.
func (s *Store) UpdateAct(ctx context.Context, a *act.Act) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid act: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE acts
		SET status = ?, schedule_note = ?, calendar_event_id = ?, linked_action_id = ?,
			proposed_date = ?, proposed_time = ?, updated_at = ?
		WHERE id = ?`,
		string(a.Status), a.ScheduleNote, a.CalendarEventID, a.LinkedActionID,
		a.ProposedDate, a.ProposedTime, time.Now().UTC().Format(timeLayout), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update act: %w", err)
	}
	return requireRow(res, ErrActNotFound)
}

const actSelect = `
	SELECT id, session_id, text, category, assignee, due_context,
		proposed_date, proposed_time, date_rationale, priority, micro_steps,
		success_criteria, motivation, confidence, method, status,
		schedule_note, calendar_event_id, linked_action_id, created_at, updated_at
	FROM acts`

func scanAct(row rowScanner) (*act.Act, error) {
	var (
		a                    act.Act
		category, method     string
		status               string
		steps                string
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.Text, &category, &a.Assignee, &a.DueContext,
		&a.ProposedDate, &a.ProposedTime, &a.DateRationale, &a.Priority, &steps,
		&a.SuccessCriteria, &a.Motivation, &a.Confidence, &method, &status,
		&a.ScheduleNote, &a.CalendarEventID, &a.LinkedActionID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan act: %w", err)
	}

	if err := json.Unmarshal([]byte(steps), &a.MicroSteps); err != nil {
		return nil, fmt.Errorf("unmarshal micro steps: %w", err)
	}
	a.Category = act.Category(category)
	a.Method = act.Method(method)
	a.Status = act.Status(status)

	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &a, nil
}
