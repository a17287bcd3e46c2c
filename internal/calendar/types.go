// Package calendar defines the narrow interfaces through which the
// pipeline reads and writes the surrounding product's calendar and
// task-tracking subsystems, plus the credential check consulted before
// any remote call.
//
// The calendar event set is owned externally. The pipeline never
// assumes exclusive access; callers re-read the window before every
// scheduling decision instead of trusting a cached snapshot.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DateLayout and TimeLayout are the civil date/time wire formats used
// across the pipeline.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrCredentialInvalid indicates a remote call was blocked because the
// user's credentials are missing, expired, or could not be refreshed.
var ErrCredentialInvalid = errors.New("credentials invalid or expired")

// Event is one existing calendar commitment.
type Event struct {
	ID       string        `json:"id,omitempty"`
	Title    string        `json:"title"`
	Date     string        `json:"date"` // "2006-01-02"
	Time     string        `json:"time"` // "15:04"
	Duration time.Duration `json:"duration"`
}

// Start returns the event's start instant in loc.
func (e Event) Start(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event start: %w", err)
	}
	return t, nil
}

// End returns the event's end instant in loc.
func (e Event) End(loc *time.Location) (time.Time, error) {
	start, err := e.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(e.Duration), nil
}

// CreateEventRequest is the payload for Writer.CreateEvent.
type CreateEventRequest struct {
	OwnerID  string        `json:"owner_id"`
	Title    string        `json:"title"`
	Date     string        `json:"date"`
	Time     string        `json:"time"`
	Duration time.Duration `json:"duration"`
	Category string        `json:"category"`

	// IdempotencyKey lets a retried create return the previously
	// created event instead of a duplicate.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateLinkedActionRequest is the payload for ActionWriter.CreateLinkedAction.
type CreateLinkedActionRequest struct {
	OwnerID         string `json:"owner_id"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	CalendarEventID string `json:"calendar_event_id"`

	// IdempotencyKey lets a retried create return the previously
	// created action instead of a duplicate.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Reader lists existing events for conflict detection. Read-only.
type Reader interface {
	ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]Event, error)
}

// Writer creates and (for compensation only) deletes calendar events.
type Writer interface {
	CreateEvent(ctx context.Context, req CreateEventRequest) (eventID string, err error)
	DeleteEvent(ctx context.Context, ownerID, eventID string) error
}

// ActionWriter mirrors a scheduled commitment into the product's
// task-tracking surfaces.
type ActionWriter interface {
	CreateLinkedAction(ctx context.Context, req CreateLinkedActionRequest) (actionID string, err error)
}

// Credentials is consulted before any remote upload or external call.
type Credentials interface {
	// IsValid reports whether the current credential is usable and not
	// about to expire.
	IsValid(ctx context.Context) bool

	// Refresh attempts to obtain a fresh credential. Returns false when
	// the user must sign in again.
	Refresh(ctx context.Context) bool
}
