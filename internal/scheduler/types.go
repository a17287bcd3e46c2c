// Package scheduler ranks candidate calendar slots for an extracted
// commitment against the owner's existing events. Suggestions are
// ephemeral: every call re-reads the calendar window, so a suggestion
// list is never older than the operation that produced it.
package scheduler

import (
	"errors"
	"time"
)

// ErrNoAcceptableSlot indicates every candidate in the search window
// hard-conflicts with an existing event.
var ErrNoAcceptableSlot = errors.New("no acceptable slot found")

// ConflictLevel classifies how a candidate slot relates to existing
// calendar events.
type ConflictLevel string

const (
	// ConflictNone means the slot and its buffer touch nothing.
	ConflictNone ConflictLevel = "none"

	// ConflictSoft means the slot is within the configured buffer of an
	// event boundary but does not overlap it.
	ConflictSoft ConflictLevel = "soft"

	// ConflictHard means the slot's window overlaps an existing event.
	ConflictHard ConflictLevel = "hard"
)

// conflictRank orders levels for tie-breaking: none < soft < hard.
var conflictRank = map[ConflictLevel]int{
	ConflictNone: 0,
	ConflictSoft: 1,
	ConflictHard: 2,
}

// Suggestion is one ranked candidate slot. Not persisted; regenerated
// on demand.
type Suggestion struct {
	Date       string        `json:"date"` // "2006-01-02"
	Time       string        `json:"time"` // "15:04"
	Duration   time.Duration `json:"duration"`
	Conflict   ConflictLevel `json:"conflict"`
	Confidence int           `json:"confidence"` // 0-100
	Rationale  string        `json:"rationale"`
}

// Config bounds the candidate search.
type Config struct {
	// DayStart and DayEnd bound the daily window candidates are drawn
	// from, in "15:04" form.
	DayStart string `koanf:"day_start"`
	DayEnd   string `koanf:"day_end"`

	// Step is the spacing between generated candidates.
	Step time.Duration `koanf:"step"`

	// Buffer is the distance from an event boundary inside which a
	// candidate counts as a soft conflict.
	Buffer time.Duration `koanf:"buffer"`

	// SearchDays is how many days past the target date are searched.
	SearchDays int `koanf:"search_days"`

	// MaxSuggestions caps the returned list.
	MaxSuggestions int `koanf:"max_suggestions"`

	// DefaultDuration is assumed when the commitment carries no
	// duration estimate.
	DefaultDuration time.Duration `koanf:"default_duration"`
}

// DefaultConfig returns the default scheduling bounds.
func DefaultConfig() Config {
	return Config{
		DayStart:        "09:00",
		DayEnd:          "18:00",
		Step:            30 * time.Minute,
		Buffer:          15 * time.Minute,
		SearchDays:      3,
		MaxSuggestions:  5,
		DefaultDuration: 30 * time.Minute,
	}
}
