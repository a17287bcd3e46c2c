// Package extraction calls the external language-processing capability
// that turns a conversation transcript into a narrative summary, key
// insights, and an ordered list of acts with scheduling hints.
//
// The external response is treated as a strict contract validated on
// receipt; any shape mismatch is a degraded result, never silently
// coerced. A degraded result is not a failure: the session completes
// with whatever survived and is visibly flagged.
package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

// ErrExtractionDegraded marks a completed-but-degraded extraction: the
// external call failed, timed out, or returned a response that does
// not satisfy the contract.
var ErrExtractionDegraded = errors.New("extraction degraded")

// InsightType tags a key insight.
type InsightType string

const (
	InsightEmotional    InsightType = "emotional"
	InsightPractical    InsightType = "practical"
	InsightRelationship InsightType = "relationship"
	InsightHealth       InsightType = "health"
)

// Valid reports whether t is a known insight type.
func (t InsightType) Valid() bool {
	switch t {
	case InsightEmotional, InsightPractical, InsightRelationship, InsightHealth:
		return true
	}
	return false
}

// Insight is one key takeaway from the conversation.
type Insight struct {
	Type       InsightType `json:"type"`
	Text       string      `json:"text"`
	Importance int         `json:"importance"` // 1 (highest) to 5
}

// Request carries the transcript and the read-only calendar window the
// provider uses to avoid proposing obviously colliding times.
type Request struct {
	SessionID string
	OwnerID   string

	// Transcript is the conversation text. When empty, AudioRef points
	// at uploaded media for server-side transcription.
	Transcript string
	AudioRef   string

	// CapturedAt anchors relative date expressions ("tomorrow").
	CapturedAt time.Time

	// Calendar is the next ~14 days of existing events, read-only.
	Calendar []calendar.Event
}

// Result is a validated extraction outcome.
type Result struct {
	Summary  string
	Insights []Insight
	Acts     []act.Act
	Method   act.Method
}

// Service extracts structured commitments from a finished session.
type Service interface {
	// Extract returns a validated result, or a zero-act Result wrapped
	// in ErrExtractionDegraded when the external capability failed.
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Config selects and configures the extraction backend.
type Config struct {
	// Provider is "llm", "heuristic", or "disabled".
	Provider string `koanf:"provider"`

	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`

	// Timeout bounds one external call.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		Provider: "heuristic",
		Timeout:  60 * time.Second,
	}
}
