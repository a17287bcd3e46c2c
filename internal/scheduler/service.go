package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/scheduler"

// Service produces ranked slot suggestions for a commitment.
type Service interface {
	// Suggest returns ranked candidate slots for a. The calendar window
	// is re-read inside the call; suggestions must not be cached across
	// calendar mutations. Returns ErrNoAcceptableSlot when every
	// candidate hard-conflicts.
	Suggest(ctx context.Context, ownerID string, a act.Act) ([]Suggestion, error)
}

// Scheduler implements Service against a calendar.Reader.
type Scheduler struct {
	cfg    Config
	reader calendar.Reader
	logger *zap.Logger
	loc    *time.Location
	clock  func() time.Time

	tracer         trace.Tracer
	meter          metric.Meter
	suggestCounter metric.Int64Counter
}

// NewScheduler creates a conflict-aware scheduler.
func NewScheduler(cfg Config, reader calendar.Reader, logger *zap.Logger) (*Scheduler, error) {
	if reader == nil {
		return nil, fmt.Errorf("calendar reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultConfig().Step
	}
	if cfg.DayStart == "" {
		cfg.DayStart = DefaultConfig().DayStart
	}
	if cfg.DayEnd == "" {
		cfg.DayEnd = DefaultConfig().DayEnd
	}
	if cfg.SearchDays <= 0 {
		cfg.SearchDays = DefaultConfig().SearchDays
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultConfig().MaxSuggestions
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultConfig().DefaultDuration
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	s := &Scheduler{
		cfg:    cfg,
		reader: reader,
		logger: logger,
		loc:    time.Local,
		clock:  time.Now,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Scheduler) initMetrics() {
	var err error
	s.suggestCounter, err = s.meter.Int64Counter(
		"voxd.scheduler.suggestions_total",
		metric.WithDescription("Total suggestion requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn("failed to create suggestion counter", zap.Error(err))
	}
}

// candidate pairs a Suggestion with the instants used for ranking.
type candidate struct {
	Suggestion
	start        time.Time
	dayOffset    int
	exactOverlap bool
}

// Suggest implements Service.
func (s *Scheduler) Suggest(ctx context.Context, ownerID string, a act.Act) ([]Suggestion, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.suggest")
	defer span.End()
	span.SetAttributes(
		attribute.String("act_id", a.ID),
		attribute.Int("priority", a.Priority),
	)
	if s.suggestCounter != nil {
		s.suggestCounter.Add(ctx, 1)
	}

	targetDay := s.targetDay(a)
	from := targetDay
	to := targetDay.AddDate(0, 0, s.cfg.SearchDays)

	events, err := s.reader.ListEvents(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	cands := s.generate(a, targetDay, events)
	if len(cands) == 0 {
		return nil, ErrNoAcceptableSlot
	}

	s.rank(a, cands)

	acceptable := false
	for _, c := range cands {
		if c.Conflict != ConflictHard {
			acceptable = true
			break
		}
	}
	if !acceptable {
		return nil, ErrNoAcceptableSlot
	}

	// An exact overlap with an existing event never leads the list when
	// a same-day conflict-free alternative exists.
	if cands[0].exactOverlap {
		for i := 1; i < len(cands); i++ {
			if cands[i].Date == cands[0].Date && cands[i].Conflict == ConflictNone {
				top := cands[i]
				copy(cands[1:i+1], cands[:i])
				cands[0] = top
				break
			}
		}
	}

	if len(cands) > s.cfg.MaxSuggestions {
		cands = cands[:s.cfg.MaxSuggestions]
	}

	out := make([]Suggestion, len(cands))
	for i, c := range cands {
		out[i] = c.Suggestion
	}

	s.logger.Debug("suggestions generated",
		zap.String("act_id", a.ID),
		zap.Int("candidates", len(out)),
		zap.String("top", out[0].Date+" "+out[0].Time))
	span.SetAttributes(attribute.Int("suggestions", len(out)))
	return out, nil
}

// targetDay resolves the first day of the search window: the proposed
// date when present and not in the past, otherwise today.
func (s *Scheduler) targetDay(a act.Act) time.Time {
	now := s.clock().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if a.ProposedDate == "" {
		return today
	}
	d, err := time.ParseInLocation(calendar.DateLayout, a.ProposedDate, s.loc)
	if err != nil || d.Before(today) {
		return today
	}
	return d
}

func (s *Scheduler) generate(a act.Act, targetDay time.Time, events []calendar.Event) []candidate {
	duration := s.cfg.DefaultDuration
	dayStart, _ := time.Parse(calendar.TimeLayout, s.cfg.DayStart)
	dayEnd, _ := time.Parse(calendar.TimeLayout, s.cfg.DayEnd)

	anchor := dayStart
	if a.ProposedTime != "" {
		if t, err := time.Parse(calendar.TimeLayout, a.ProposedTime); err == nil {
			anchor = t
		}
	}

	var cands []candidate
	for off := 0; off < s.cfg.SearchDays; off++ {
		day := targetDay.AddDate(0, 0, off)

		times := s.dayTimes(day, dayStart, dayEnd, duration)
		if off == 0 && a.ProposedTime != "" {
			times = insertTime(times, day, anchor)
		}

		for _, start := range times {
			c := candidate{
				Suggestion: Suggestion{
					Date:     start.Format(calendar.DateLayout),
					Time:     start.Format(calendar.TimeLayout),
					Duration: duration,
				},
				start:     start,
				dayOffset: off,
			}
			c.Conflict, c.exactOverlap, c.Rationale = s.classify(start, duration, events)
			c.Confidence = s.score(a, c, anchor)
			cands = append(cands, c)
		}
	}
	return cands
}

// dayTimes yields candidate start instants for one day on the step
// grid, keeping the full duration inside the day window.
func (s *Scheduler) dayTimes(day, dayStart, dayEnd time.Time, duration time.Duration) []time.Time {
	start := day.Add(time.Duration(dayStart.Hour())*time.Hour + time.Duration(dayStart.Minute())*time.Minute)
	end := day.Add(time.Duration(dayEnd.Hour())*time.Hour + time.Duration(dayEnd.Minute())*time.Minute)

	var out []time.Time
	for t := start; !t.Add(duration).After(end); t = t.Add(s.cfg.Step) {
		out = append(out, t)
	}
	return out
}

// insertTime merges the exact proposed time into the grid when it
// falls off the step boundaries.
func insertTime(times []time.Time, day, anchor time.Time) []time.Time {
	at := day.Add(time.Duration(anchor.Hour())*time.Hour + time.Duration(anchor.Minute())*time.Minute)
	for _, t := range times {
		if t.Equal(at) {
			return times
		}
	}
	times = append(times, at)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// classify labels one candidate window against the event set and
// builds its rationale.
func (s *Scheduler) classify(start time.Time, duration time.Duration, events []calendar.Event) (ConflictLevel, bool, string) {
	end := start.Add(duration)

	level := ConflictNone
	exact := false
	detail := "no nearby events"
	for _, ev := range events {
		evStart, err := ev.Start(s.loc)
		if err != nil {
			continue
		}
		evEnd := evStart.Add(ev.Duration)

		if start.Before(evEnd) && end.After(evStart) {
			level = ConflictHard
			detail = fmt.Sprintf("overlaps %q", ev.Title)
			if start.Equal(evStart) {
				exact = true
			}
			break
		}

		gap := evStart.Sub(end)
		if gap < 0 {
			gap = start.Sub(evEnd)
		}
		if gap < s.cfg.Buffer && level == ConflictNone {
			level = ConflictSoft
			detail = fmt.Sprintf("within %s of %q", s.cfg.Buffer, ev.Title)
		}
	}

	rationale := fmt.Sprintf("%s slot at %s, %s",
		duration, start.Format(calendar.TimeLayout), detail)
	return level, exact, rationale
}

// score assigns a confidence in [50,95]: highest for the proposed day
// and time, falling off with day distance and time distance from the
// anchor.
func (s *Scheduler) score(a act.Act, c candidate, anchor time.Time) int {
	conf := 95 - c.dayOffset*10

	anchorMin := anchor.Hour()*60 + anchor.Minute()
	slotMin := c.start.Hour()*60 + c.start.Minute()
	dist := slotMin - anchorMin
	if dist < 0 {
		dist = -dist
	}
	conf -= dist / 30 * 3

	switch c.Conflict {
	case ConflictSoft:
		conf -= 5
	case ConflictHard:
		conf -= 15
	}

	if conf < 50 {
		conf = 50
	}
	return conf
}

// rank sorts candidates best first: confidence, then conflict level,
// then the priority- and due-context-dependent tie-breaks.
func (s *Scheduler) rank(a act.Act, cands []candidate) {
	weekBias := strings.Contains(strings.ToLower(a.DueContext), "week")

	sort.SliceStable(cands, func(i, j int) bool {
		ci, cj := cands[i], cands[j]
		if ci.Confidence != cj.Confidence {
			return ci.Confidence > cj.Confidence
		}
		if conflictRank[ci.Conflict] != conflictRank[cj.Conflict] {
			return conflictRank[ci.Conflict] < conflictRank[cj.Conflict]
		}
		if a.Urgent() {
			return ci.start.Before(cj.start)
		}
		if weekBias && ci.Date != cj.Date {
			// "this week" spreads commitments toward later slots.
			return ci.Date > cj.Date
		}
		return ci.start.Before(cj.start)
	})
}

var _ Service = (*Scheduler)(nil)
