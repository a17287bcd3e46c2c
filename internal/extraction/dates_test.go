package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

// captured on Monday 2026-03-02, mid-afternoon
var monday = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

func TestResolveDueContext(t *testing.T) {
	tests := []struct {
		due  string
		want string
	}{
		{"today", "2026-03-02"},
		{"tonight", "2026-03-02"},
		{"tomorrow", "2026-03-03"},
		{"by tomorrow", "2026-03-03"},
		{"this week", "2026-03-05"},
		{"sometime this week", "2026-03-05"},
		{"next week", "2026-03-09"},
		{"by friday", "2026-03-06"},
		{"by Friday", "2026-03-06"},
		{"on wednesday", "2026-03-04"},
		{"by sunday", "2026-03-08"},
	}
	for _, tt := range tests {
		t.Run(tt.due, func(t *testing.T) {
			got, ok := ResolveDueContext(tt.due, monday)
			require.True(t, ok)
			assert.Equal(t, tt.want, formatDate(got))
		})
	}
}

func TestResolveDueContext_SameWeekdayMeansNextOccurrence(t *testing.T) {
	// "by Monday" said on a Monday means the coming Monday, not today.
	got, ok := ResolveDueContext("by monday", monday)
	require.True(t, ok)
	assert.Equal(t, "2026-03-09", formatDate(got))
}

func TestResolveDueContext_ThisWeekWithinSevenDays(t *testing.T) {
	got, ok := ResolveDueContext("this week", monday)
	require.True(t, ok)
	assert.True(t, got.Sub(monday) <= 7*24*time.Hour)
}

func TestResolveDueContext_NextWeekWindow(t *testing.T) {
	got, ok := ResolveDueContext("next week", monday)
	require.True(t, ok)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	diff := got.Sub(day)
	assert.GreaterOrEqual(t, diff, 7*24*time.Hour)
	assert.LessOrEqual(t, diff, 14*24*time.Hour)
}

func TestResolveDueContext_NoSignal(t *testing.T) {
	for _, due := range []string{"", "when I can", "eventually"} {
		_, ok := ResolveDueContext(due, monday)
		assert.False(t, ok, "%q should carry no time signal", due)
	}
}

func TestAlignWithDueContext(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		due   string
		want  string
		moved bool
	}{
		{"this week date inside window", "2026-03-05", "this week", "", false},
		{"this week date a month out", "2026-04-01", "this week", "2026-03-05", true},
		{"next week date too early", "2026-03-03", "next week", "2026-03-09", true},
		{"next week date inside window", "2026-03-11", "next week", "", false},
		{"weekday due has no horizon", "2026-04-01", "by friday", "", false},
		{"unparseable date left alone", "soon", "this week", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := alignWithDueContext(tt.date, tt.due, monday)
			require.Equal(t, tt.moved, moved)
			if moved {
				assert.Equal(t, tt.want, formatDate(got))
			}
		})
	}
}

func TestNudgeCollision_MovesOffExactCollision(t *testing.T) {
	events := []calendar.Event{
		{Title: "Standup", Date: "2026-03-03", Time: "10:00", Duration: 30 * time.Minute},
	}
	got := nudgeCollision("2026-03-03", "10:00", events)
	assert.Equal(t, "10:30", got)
}

func TestNudgeCollision_SkipsToNextFreeSlot(t *testing.T) {
	events := []calendar.Event{
		{Title: "Standup", Date: "2026-03-03", Time: "10:00", Duration: 30 * time.Minute},
		{Title: "Review", Date: "2026-03-03", Time: "10:30", Duration: 30 * time.Minute},
	}
	got := nudgeCollision("2026-03-03", "10:00", events)
	assert.Equal(t, "11:00", got)
}

func TestNudgeCollision_NoCollisionUnchanged(t *testing.T) {
	events := []calendar.Event{
		{Title: "Standup", Date: "2026-03-03", Time: "10:00", Duration: 30 * time.Minute},
	}
	assert.Equal(t, "14:00", nudgeCollision("2026-03-03", "14:00", events))
	// Same time on a different day is not a collision.
	assert.Equal(t, "10:00", nudgeCollision("2026-03-04", "10:00", events))
}

func TestNudgeCollision_EmptyInputsUnchanged(t *testing.T) {
	assert.Equal(t, "", nudgeCollision("2026-03-03", "", nil))
	assert.Equal(t, "10:00", nudgeCollision("", "10:00", nil))
}
