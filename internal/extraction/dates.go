package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

// Relative date resolution, anchored on the capture date:
//
//	"today"        -> capture date
//	"tomorrow"     -> +1 day
//	"this week"    -> within +7 days (mid-window default: +3)
//	"next week"    -> +7..+14 days (default: +7)
//	"by <weekday>" -> nearest upcoming occurrence of that weekday
//
// These rules are deterministic and locale-independent; tests pin them.

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ResolveDueContext maps a free-text time expression to a concrete
// date. The second return is false when the expression carries no
// recognizable time signal.
func ResolveDueContext(due string, capturedAt time.Time) (time.Time, bool) {
	day := time.Date(capturedAt.Year(), capturedAt.Month(), capturedAt.Day(), 0, 0, 0, 0, capturedAt.Location())

	norm := strings.ToLower(strings.TrimSpace(due))
	switch {
	case norm == "":
		return time.Time{}, false
	case strings.Contains(norm, "today"), strings.Contains(norm, "tonight"):
		return day, true
	case strings.Contains(norm, "tomorrow"):
		return day.AddDate(0, 0, 1), true
	case strings.Contains(norm, "next week"):
		return day.AddDate(0, 0, 7), true
	case strings.Contains(norm, "this week"):
		return day.AddDate(0, 0, 3), true
	}

	for name, wd := range weekdays {
		if strings.Contains(norm, name) {
			return nextWeekday(day, wd), true
		}
	}
	return time.Time{}, false
}

// nextWeekday returns the nearest upcoming occurrence of wd strictly
// after from's day when from already is that weekday ("by Monday" said
// on a Monday means the coming one).
func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(from.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return from.AddDate(0, 0, delta)
}

// dueContextHorizon returns the inclusive day window a due-context
// expression allows, for validating provider-proposed dates.
func dueContextHorizon(due string, capturedAt time.Time) (from, to time.Time, ok bool) {
	day := time.Date(capturedAt.Year(), capturedAt.Month(), capturedAt.Day(), 0, 0, 0, 0, capturedAt.Location())
	norm := strings.ToLower(strings.TrimSpace(due))
	switch {
	case strings.Contains(norm, "next week"):
		return day.AddDate(0, 0, 7), day.AddDate(0, 0, 14), true
	case strings.Contains(norm, "this week"):
		return day, day.AddDate(0, 0, 7), true
	}
	return time.Time{}, time.Time{}, false
}

// alignWithDueContext checks a provider-proposed date against the
// window its due-context expression allows. When the date falls
// outside the window the expression's own resolution wins; the second
// return reports that the date moved.
func alignWithDueContext(date, due string, capturedAt time.Time) (time.Time, bool) {
	from, to, ok := dueContextHorizon(due, capturedAt)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(calendar.DateLayout, date, capturedAt.Location())
	if err != nil {
		return time.Time{}, false
	}
	if !d.Before(from) && !d.After(to) {
		return time.Time{}, false
	}
	return ResolveDueContext(due, capturedAt)
}

// nudgeCollision moves a proposed time off an exact collision with an
// existing event when a free same-day alternative is obviously
// inferable; otherwise it leaves conflict resolution to the scheduler.
func nudgeCollision(date, timeOfDay string, events []calendar.Event) string {
	if date == "" || timeOfDay == "" {
		return timeOfDay
	}

	taken := make(map[string]time.Duration)
	for _, e := range events {
		if e.Date == date {
			taken[e.Time] = e.Duration
		}
	}
	dur, collides := taken[timeOfDay]
	if !collides {
		return timeOfDay
	}

	start, err := time.Parse(calendar.TimeLayout, timeOfDay)
	if err != nil {
		return timeOfDay
	}
	if dur == 0 {
		dur = 30 * time.Minute
	}

	// Try right after the colliding event, then a few later half-hour
	// slots on the same day.
	candidates := []time.Time{start.Add(dur)}
	for i := 1; i <= 4; i++ {
		candidates = append(candidates, start.Add(dur+time.Duration(i)*30*time.Minute))
	}
	for _, c := range candidates {
		if c.Day() != start.Day() {
			break // ran past midnight; defer to the scheduler
		}
		hhmm := c.Format(calendar.TimeLayout)
		if _, busy := taken[hhmm]; !busy {
			return hhmm
		}
	}
	return timeOfDay
}

// formatDate renders a civil date in the wire layout.
func formatDate(t time.Time) string {
	return t.Format(calendar.DateLayout)
}

// validTime reports whether v parses as "15:04".
func validTime(v string) bool {
	_, err := time.Parse(calendar.TimeLayout, v)
	return err == nil
}

// validDate reports whether v parses as "2006-01-02".
func validDate(v string) bool {
	_, err := time.Parse(calendar.DateLayout, v)
	return err == nil
}

// describeResolution builds the rationale attached to a resolved date
// so the user can see why it was chosen.
func describeResolution(due string, resolved time.Time) string {
	return fmt.Sprintf("%q resolved to %s (%s)", due, formatDate(resolved), resolved.Weekday())
}
