// Package act defines the extracted commitment model shared by the
// extraction gateway, the scheduler, and the lifecycle manager.
//
// An Act is a single actionable item pulled out of a conversation
// transcript: something to do, something to watch out for, a dependency
// on another person, or a plain note. Acts move through a forward-only
// status lifecycle; rejection is terminal.
package act

import (
	"fmt"
	"time"
)

// Category classifies what kind of commitment an Act represents.
type Category string

const (
	CategoryAction    Category = "action"
	CategoryWatchOut  Category = "watch_out"
	CategoryDependsOn Category = "depends_on"
	CategoryNote      Category = "note"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAction, CategoryWatchOut, CategoryDependsOn, CategoryNote:
		return true
	}
	return false
}

// Status is the lifecycle state of an Act.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusConfirmed  Status = "confirmed"
	StatusRejected   Status = "rejected"
	StatusScheduled  Status = "scheduled"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusConfirmed, StatusRejected, StatusScheduled, StatusCompleted:
		return true
	}
	return false
}

// statusRank orders the forward-only lifecycle. Rejected has no rank;
// it is reachable only from pre-scheduling states and nothing follows it.
var statusRank = map[Status]int{
	StatusNotStarted: 0,
	StatusConfirmed:  1,
	StatusScheduled:  2,
	StatusCompleted:  3,
}

// CanTransition reports whether an Act may move from one status to
// another. Status only advances forward; rejected is terminal and is
// only reachable before scheduling.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if from == StatusRejected {
		return false
	}
	if to == StatusRejected {
		return from == StatusNotStarted || from == StatusConfirmed
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Method records how the Act was extracted.
type Method string

const (
	MethodLLM       Method = "llm"
	MethodHeuristic Method = "heuristic"
)

// MicroStep is one ordered sub-step of an Act.
type MicroStep struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Act is a structured, schedulable commitment extracted from a
// conversation transcript.
type Act struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Text is the verb-first action statement.
	Text     string   `json:"text"`
	Category Category `json:"category"`

	// Assignee is "me", a person's name, or "shared".
	Assignee string `json:"assignee"`

	// DueContext is the free-text time expression from the transcript,
	// e.g. "by Friday" or "this week".
	DueContext string `json:"due_context,omitempty"`

	// ProposedDate is "2006-01-02" and ProposedTime is "15:04".
	// Either may be empty when the transcript carried no time signal.
	ProposedDate string `json:"proposed_date,omitempty"`
	ProposedTime string `json:"proposed_time,omitempty"`

	// DateRationale explains why the proposed date/time was chosen.
	DateRationale string `json:"date_rationale,omitempty"`

	// Priority is 1 (highest) to 5 (lowest).
	Priority int `json:"priority"`

	MicroSteps      []MicroStep `json:"micro_steps,omitempty"`
	SuccessCriteria string      `json:"success_criteria,omitempty"`
	Motivation      string      `json:"motivation,omitempty"`

	// Confidence is the extraction validation score, 0..100.
	Confidence int    `json:"confidence"`
	Method     Method `json:"method"`

	Status Status `json:"status"`

	// ScheduleNote is the human-readable record of the chosen slot,
	// set by the lifecycle manager on scheduling.
	ScheduleNote    string `json:"schedule_note,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	LinkedActionID  string `json:"linked_action_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants every persisted Act must hold.
func (a *Act) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("act id is required")
	}
	if a.SessionID == "" {
		return fmt.Errorf("act session id is required")
	}
	if a.Text == "" {
		return fmt.Errorf("act text is required")
	}
	if !a.Category.Valid() {
		return fmt.Errorf("invalid category: %q", a.Category)
	}
	if a.Priority < 1 || a.Priority > 5 {
		return fmt.Errorf("priority out of range: %d", a.Priority)
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("confidence out of range: %d", a.Confidence)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid status: %q", a.Status)
	}
	return nil
}

// Urgent reports whether the Act should prefer earlier times of day
// when candidate slots are otherwise equal.
func (a *Act) Urgent() bool {
	return a.Priority <= 2
}
