// Package lifecycle drives an extracted commitment through
// confirmation, scheduling, and completion. Scheduling is a single
// logical unit over two remote writes and one local write; a partial
// failure compensates and leaves the commitment unscheduled.
package lifecycle

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/scheduler"
)

var (
	// ErrInvalidState is returned for a lifecycle operation the
	// commitment's current status does not permit, including any
	// operation on a rejected commitment and a second schedule attempt
	// on an already-scheduled one.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrPartialWrite is returned when scheduling's multi-step write did
	// not fully complete. The commitment remains unscheduled; retrying
	// with the same suggestion is safe and will not duplicate the
	// calendar event.
	ErrPartialWrite = errors.New("scheduling write did not fully complete")
)

// Decision is the user's verdict on an extracted commitment.
type Decision string

const (
	DecisionConfirmed Decision = "confirmed"
	DecisionRejected  Decision = "rejected"
)

// Acts is the persistence surface the manager needs.
type Acts interface {
	GetAct(ctx context.Context, id string) (*act.Act, error)
	UpdateAct(ctx context.Context, a *act.Act) error
}

// Service manages commitment state transitions. Callers authenticate
// the owner; ownerID here only addresses the owner's calendar.
type Service interface {
	// Confirm records the user's decision. Rejected is terminal.
	Confirm(ctx context.Context, actID string, decision Decision) (*act.Act, error)

	// Schedule places a confirmed (or, as an explicit rule, a
	// not_started) commitment onto the calendar at the chosen slot.
	Schedule(ctx context.Context, ownerID, actID string, sug scheduler.Suggestion) (*act.Act, error)

	// Complete marks a commitment done.
	Complete(ctx context.Context, actID string) (*act.Act, error)
}
