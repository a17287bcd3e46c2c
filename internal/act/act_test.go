package act

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Forward(t *testing.T) {
	assert.True(t, CanTransition(StatusNotStarted, StatusConfirmed))
	assert.True(t, CanTransition(StatusNotStarted, StatusScheduled))
	assert.True(t, CanTransition(StatusConfirmed, StatusScheduled))
	assert.True(t, CanTransition(StatusScheduled, StatusCompleted))
}

func TestCanTransition_NeverBackward(t *testing.T) {
	assert.False(t, CanTransition(StatusScheduled, StatusConfirmed))
	assert.False(t, CanTransition(StatusCompleted, StatusScheduled))
	assert.False(t, CanTransition(StatusConfirmed, StatusNotStarted))
}

func TestCanTransition_RejectedIsTerminal(t *testing.T) {
	for _, to := range []Status{StatusNotStarted, StatusConfirmed, StatusScheduled, StatusCompleted} {
		assert.False(t, CanTransition(StatusRejected, to), "rejected -> %s must be refused", to)
	}
}

func TestCanTransition_RejectOnlyBeforeScheduling(t *testing.T) {
	assert.True(t, CanTransition(StatusNotStarted, StatusRejected))
	assert.True(t, CanTransition(StatusConfirmed, StatusRejected))
	assert.False(t, CanTransition(StatusScheduled, StatusRejected))
	assert.False(t, CanTransition(StatusCompleted, StatusRejected))
}

func TestCanTransition_SelfIsRefused(t *testing.T) {
	assert.False(t, CanTransition(StatusScheduled, StatusScheduled))
}

func TestValidate(t *testing.T) {
	valid := Act{
		ID:        "a1",
		SessionID: "s1",
		Text:      "Call Dr. Smith",
		Category:  CategoryAction,
		Priority:  2,
		Status:    StatusNotStarted,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Act)
	}{
		{"missing id", func(a *Act) { a.ID = "" }},
		{"missing session", func(a *Act) { a.SessionID = "" }},
		{"missing text", func(a *Act) { a.Text = "" }},
		{"bad category", func(a *Act) { a.Category = "chore" }},
		{"priority too low", func(a *Act) { a.Priority = 0 }},
		{"priority too high", func(a *Act) { a.Priority = 6 }},
		{"confidence out of range", func(a *Act) { a.Confidence = 101 }},
		{"bad status", func(a *Act) { a.Status = "done" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestUrgent(t *testing.T) {
	assert.True(t, (&Act{Priority: 1}).Urgent())
	assert.True(t, (&Act{Priority: 2}).Urgent())
	assert.False(t, (&Act{Priority: 3}).Urgent())
}
