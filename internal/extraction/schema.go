package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

// Wire schema for the structured extraction response. Every field the
// contract requires is validated on receipt; a response missing
// required fields is a gateway failure, not partially accepted.

type wireResponse struct {
	Summary  string        `json:"summary"`
	Insights []wireInsight `json:"insights"`
	Acts     []wireAct     `json:"acts"`
}

type wireInsight struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Importance int    `json:"importance"`
}

type wireAct struct {
	Text            string   `json:"text"`
	Category        string   `json:"category"`
	Assignee        string   `json:"assignee"`
	DueContext      string   `json:"due_context"`
	ProposedDate    string   `json:"proposed_date"`
	ProposedTime    string   `json:"proposed_time"`
	DateRationale   string   `json:"date_rationale"`
	Priority        int      `json:"priority"`
	MicroSteps      []string `json:"micro_steps"`
	SuccessCriteria string   `json:"success_criteria"`
	Motivation      string   `json:"motivation"`
	Confidence      int      `json:"confidence"`
}

// parseResponse decodes and validates a provider reply against the
// contract, then resolves relative dates against the capture date and
// nudges obvious same-day collisions.
func parseResponse(raw string, req Request, method act.Method) (*Result, error) {
	raw = strings.TrimSpace(raw)
	// Some providers wrap JSON in a fenced block despite JSON mode.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var wire wireResponse
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	if wire.Summary == "" {
		return nil, fmt.Errorf("response missing summary")
	}
	if len(wire.Insights) < 3 || len(wire.Insights) > 5 {
		return nil, fmt.Errorf("expected 3-5 insights, got %d", len(wire.Insights))
	}

	insights := make([]Insight, 0, len(wire.Insights))
	for i, in := range wire.Insights {
		t := InsightType(in.Type)
		if !t.Valid() {
			return nil, fmt.Errorf("insight %d has unknown type %q", i, in.Type)
		}
		if in.Text == "" {
			return nil, fmt.Errorf("insight %d missing text", i)
		}
		if in.Importance < 1 || in.Importance > 5 {
			return nil, fmt.Errorf("insight %d importance out of range: %d", i, in.Importance)
		}
		insights = append(insights, Insight{Type: t, Text: in.Text, Importance: in.Importance})
	}

	acts := make([]act.Act, 0, len(wire.Acts))
	for i, w := range wire.Acts {
		a, err := convertAct(w, req, method)
		if err != nil {
			return nil, fmt.Errorf("act %d: %w", i, err)
		}
		acts = append(acts, a)
	}

	return &Result{
		Summary:  wire.Summary,
		Insights: insights,
		Acts:     acts,
		Method:   method,
	}, nil
}

func convertAct(w wireAct, req Request, method act.Method) (act.Act, error) {
	category := act.Category(w.Category)
	if !category.Valid() {
		return act.Act{}, fmt.Errorf("unknown category %q", w.Category)
	}
	if w.Text == "" {
		return act.Act{}, fmt.Errorf("missing text")
	}
	if w.Priority < 1 || w.Priority > 5 {
		return act.Act{}, fmt.Errorf("priority out of range: %d", w.Priority)
	}
	if w.Confidence < 0 || w.Confidence > 100 {
		return act.Act{}, fmt.Errorf("confidence out of range: %d", w.Confidence)
	}
	if w.ProposedDate != "" && !validDate(w.ProposedDate) {
		return act.Act{}, fmt.Errorf("bad proposed date %q", w.ProposedDate)
	}
	if w.ProposedTime != "" && !validTime(w.ProposedTime) {
		return act.Act{}, fmt.Errorf("bad proposed time %q", w.ProposedTime)
	}

	assignee := w.Assignee
	if assignee == "" {
		assignee = "me"
	}

	date := w.ProposedDate
	rationale := w.DateRationale
	switch {
	case date == "" && w.DueContext != "":
		if resolved, ok := ResolveDueContext(w.DueContext, req.CapturedAt); ok {
			date = formatDate(resolved)
			if rationale == "" {
				rationale = describeResolution(w.DueContext, resolved)
			}
		}
	case date != "" && w.DueContext != "":
		// A proposed date outside the window the due context allows is a
		// provider slip; the expression's own resolution wins.
		if resolved, moved := alignWithDueContext(date, w.DueContext, req.CapturedAt); moved {
			date = formatDate(resolved)
			rationale = describeResolution(w.DueContext, resolved)
		}
	}

	timeOfDay := nudgeCollision(date, w.ProposedTime, req.Calendar)

	steps := make([]act.MicroStep, 0, len(w.MicroSteps))
	for _, s := range w.MicroSteps {
		if s == "" {
			continue
		}
		steps = append(steps, act.MicroStep{Text: s})
	}

	return act.Act{
		ID:              uuid.New().String(),
		SessionID:       req.SessionID,
		Text:            w.Text,
		Category:        category,
		Assignee:        assignee,
		DueContext:      w.DueContext,
		ProposedDate:    date,
		ProposedTime:    timeOfDay,
		DateRationale:   rationale,
		Priority:        w.Priority,
		MicroSteps:      steps,
		SuccessCriteria: w.SuccessCriteria,
		Motivation:      w.Motivation,
		Confidence:      w.Confidence,
		Method:          method,
		Status:          act.StatusNotStarted,
	}, nil
}
