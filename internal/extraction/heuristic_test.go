package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

func TestHeuristic_CallDoctorTomorrow(t *testing.T) {
	h := &heuristicExtractor{}
	res, err := h.run(context.Background(), Request{
		SessionID:  "sess-1",
		OwnerID:    "owner-1",
		Transcript: "I need to call Dr. Smith tomorrow. The week is already full.",
		CapturedAt: monday,
	})
	require.NoError(t, err)
	require.Len(t, res.Acts, 1)

	a := res.Acts[0]
	assert.Equal(t, act.CategoryAction, a.Category)
	assert.Equal(t, "Call Dr Smith tomorrow", a.Text)
	assert.Equal(t, "me", a.Assignee)
	assert.Equal(t, "tomorrow", a.DueContext)
	assert.Equal(t, "2026-03-03", a.ProposedDate)
	assert.Equal(t, 2, a.Priority)
	assert.Equal(t, act.StatusNotStarted, a.Status)
	assert.Equal(t, act.MethodHeuristic, a.Method)
}

func TestHeuristic_Categories(t *testing.T) {
	transcript := "I need to send the report by friday. " +
		"Watch out for the budget freeze next week. " +
		"I'm waiting on Maria for the contract draft. " +
		"Note that the office closes early today."

	h := &heuristicExtractor{}
	res, err := h.run(context.Background(), Request{
		SessionID:  "sess-2",
		Transcript: transcript,
		CapturedAt: monday,
	})
	require.NoError(t, err)
	require.Len(t, res.Acts, 4)

	byCategory := make(map[act.Category]act.Act)
	for _, a := range res.Acts {
		byCategory[a.Category] = a
	}
	assert.Contains(t, byCategory, act.CategoryAction)
	assert.Contains(t, byCategory, act.CategoryWatchOut)
	assert.Contains(t, byCategory, act.CategoryDependsOn)
	assert.Contains(t, byCategory, act.CategoryNote)

	// "by friday" from a Monday capture lands on that Friday.
	assert.Equal(t, "2026-03-06", byCategory[act.CategoryAction].ProposedDate)
}

func TestHeuristic_UrgencyRaisesPriority(t *testing.T) {
	h := &heuristicExtractor{}
	res, err := h.run(context.Background(), Request{
		SessionID:  "sess-3",
		Transcript: "I need to fix the outage asap.",
		CapturedAt: monday,
	})
	require.NoError(t, err)
	require.Len(t, res.Acts, 1)
	assert.Equal(t, 1, res.Acts[0].Priority)
	assert.True(t, res.Acts[0].Urgent())
}

func TestHeuristic_DeduplicatesRepeats(t *testing.T) {
	h := &heuristicExtractor{}
	res, err := h.run(context.Background(), Request{
		SessionID:  "sess-4",
		Transcript: "I need to water the plants. Seriously, I need to water the plants.",
		CapturedAt: monday,
	})
	require.NoError(t, err)
	assert.Len(t, res.Acts, 1)
}

func TestHeuristic_InsightFloor(t *testing.T) {
	h := &heuristicExtractor{}
	res, err := h.run(context.Background(), Request{
		SessionID:  "sess-5",
		Transcript: "Nothing actionable here, just rambling.",
		CapturedAt: monday,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Acts)
	require.Len(t, res.Insights, 3)
	for _, in := range res.Insights {
		assert.True(t, in.Type.Valid())
		assert.NotEmpty(t, in.Text)
	}
}

func TestHeuristic_EmptyTranscript(t *testing.T) {
	h := &heuristicExtractor{}
	_, err := h.run(context.Background(), Request{SessionID: "sess-6", CapturedAt: monday})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "First thing. Second thing.", summarize("First thing. Second thing. Third thing."))
	assert.Equal(t, "no punctuation at all", summarize("no punctuation at all"))
}
