// Package session implements the recording session state machine and
// its service: one bounded capture interval from start to stop,
// pause-aware elapsed time, the at-most-one-active-per-owner
// constraint, and the asynchronous hand-off into extraction.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/extraction"
)

var (
	// ErrSessionConflict is returned when a second active session is
	// attempted for the same owner. The prior session must be stopped
	// explicitly; the state machine never silently overwrites it.
	ErrSessionConflict = errors.New("another session is already active for this owner")

	// ErrInvalidTransition is returned for an illegal state-machine
	// call. No-ops are errors, not silently ignored, so callers can
	// detect programming mistakes.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrNotFound is returned when the session id is unknown.
	ErrNotFound = errors.New("session not found")
)

// State is a recording session's lifecycle state.
//
// idle → recording ⇄ paused → stopped → processing → ready
//
// ready is terminal; a new session starts fresh. failed is reached
// only when the capture path cannot make the payload durable; a
// failed extraction never produces it.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateStopped    State = "stopped"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// ContextTag describes what kind of conversation was captured.
type ContextTag string

const (
	TagMeeting    ContextTag = "meeting"
	TagVoiceNote  ContextTag = "voice_note"
	TagCall       ContextTag = "call"
	TagReflection ContextTag = "reflection"
)

// Meta is the caller-supplied metadata for a new session.
type Meta struct {
	Title        string     `json:"title"`
	Participants []string   `json:"participants,omitempty"`
	ContextTag   ContextTag `json:"context_tag"`
}

// Session is one recording interval and its processing outcome.
type Session struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Participants []string   `json:"participants,omitempty"`
	ContextTag   ContextTag `json:"context_tag"`

	State  State `json:"state"`
	Active bool  `json:"active"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// PausedAt is set while the session sits in paused; PausedTotal
	// accumulates closed pause intervals.
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	PausedTotal time.Duration `json:"paused_total"`

	// Summary and Insights are attached when extraction completes.
	Summary  string               `json:"summary,omitempty"`
	Insights []extraction.Insight `json:"insights,omitempty"`

	// Degraded marks a session whose extraction failed or returned
	// nothing; the session still completed.
	Degraded bool `json:"degraded"`

	Archived bool `json:"archived"`
}

// Elapsed returns recording time at instant now, excluding paused
// intervals. Monotonic for a fixed pause history.
func (s *Session) Elapsed(now time.Time) time.Duration {
	var end time.Time
	switch {
	case s.PausedAt != nil:
		end = *s.PausedAt
	case s.EndedAt != nil:
		end = *s.EndedAt
	default:
		end = now
	}
	d := end.Sub(s.StartedAt) - s.PausedTotal
	if d < 0 {
		return 0
	}
	return d
}

// StopRequest carries the finished capture into Stop. The client
// supplies the raw audio payload and, when available, an on-device
// transcript; without one the uploaded media reference is handed to
// the extraction gateway instead.
type StopRequest struct {
	Payload    []byte
	Transcript string
}

// Store is the persistence the session service needs. Implemented by
// the sqlite store.
type Store interface {
	// CreateSession inserts a new active session. Returns
	// ErrSessionConflict when the owner already has an active one.
	CreateSession(ctx context.Context, s *Session) error

	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	ListSessions(ctx context.Context, ownerID string) ([]*Session, error)
	ArchiveSession(ctx context.Context, id string) error

	// SaveExtraction persists the extraction outcome and the session's
	// final state in one transaction.
	SaveExtraction(ctx context.Context, s *Session, acts []act.Act) error
}
