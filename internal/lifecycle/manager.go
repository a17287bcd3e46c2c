package lifecycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
	"github.com/fyrsmithlabs/voxd/internal/locks"
	"github.com/fyrsmithlabs/voxd/internal/scheduler"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/lifecycle"

// Manager implements Service. Operations on the same commitment
// serialize through a keyed mutex; distinct commitments proceed in
// parallel.
type Manager struct {
	acts    Acts
	events  calendar.Writer
	actions calendar.ActionWriter
	locks   *locks.KeyedMutex
	logger  *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	scheduledCounter metric.Int64Counter
	partialCounter   metric.Int64Counter
}

// NewManager creates a commitment lifecycle manager.
func NewManager(acts Acts, events calendar.Writer, actions calendar.ActionWriter, logger *zap.Logger) (*Manager, error) {
	if acts == nil {
		return nil, fmt.Errorf("act store is required")
	}
	if events == nil {
		return nil, fmt.Errorf("calendar writer is required")
	}
	if actions == nil {
		return nil, fmt.Errorf("action writer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		acts:    acts,
		events:  events,
		actions: actions,
		locks:   locks.NewKeyedMutex(),
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	m.initMetrics()
	return m, nil
}

func (m *Manager) initMetrics() {
	var err error

	m.scheduledCounter, err = m.meter.Int64Counter(
		"voxd.lifecycle.scheduled_total",
		metric.WithDescription("Commitments successfully scheduled"),
		metric.WithUnit("{act}"),
	)
	if err != nil {
		m.logger.Warn("failed to create scheduled counter", zap.Error(err))
	}

	m.partialCounter, err = m.meter.Int64Counter(
		"voxd.lifecycle.partial_writes_total",
		metric.WithDescription("Scheduling attempts that had to compensate"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create partial write counter", zap.Error(err))
	}
}

// Confirm implements Service.
func (m *Manager) Confirm(ctx context.Context, actID string, decision Decision) (*act.Act, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("act_id", actID),
		attribute.String("decision", string(decision)),
	)

	var target act.Status
	switch decision {
	case DecisionConfirmed:
		target = act.StatusConfirmed
	case DecisionRejected:
		target = act.StatusRejected
	default:
		return nil, fmt.Errorf("unknown decision: %q", decision)
	}

	m.locks.Lock(actID)
	defer m.locks.Unlock(actID)

	a, err := m.acts.GetAct(ctx, actID)
	if err != nil {
		return nil, err
	}
	if !act.CanTransition(a.Status, target) {
		return nil, fmt.Errorf("%w: cannot %s a %s commitment", ErrInvalidState, decision, a.Status)
	}

	a.Status = target
	if err := m.acts.UpdateAct(ctx, a); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}

	m.logger.Info("commitment decided",
		zap.String("act_id", actID),
		zap.String("decision", string(decision)))
	return a, nil
}

// Schedule implements Service. The three writes (calendar event,
// linked action, local status) succeed together or the commitment
// stays unscheduled: a created event is deleted on a later sub-step
// failure, and both remote creates carry the commitment id as an
// idempotency key so a retry with the same suggestion reuses what an
// earlier attempt left behind instead of duplicating it.
func (m *Manager) Schedule(ctx context.Context, ownerID, actID string, sug scheduler.Suggestion) (*act.Act, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.schedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("act_id", actID),
		attribute.String("slot", sug.Date+" "+sug.Time),
	)

	m.locks.Lock(actID)
	defer m.locks.Unlock(actID)

	a, err := m.acts.GetAct(ctx, actID)
	if err != nil {
		return nil, err
	}

	// Scheduling from not_started is an explicit rule: the user picking
	// a slot is taken as confirmation. Everything else must already be
	// confirmed, and a second attempt on a scheduled commitment fails
	// rather than silently rescheduling.
	switch a.Status {
	case act.StatusNotStarted, act.StatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: cannot schedule a %s commitment", ErrInvalidState, a.Status)
	}

	eventID, err := m.events.CreateEvent(ctx, calendar.CreateEventRequest{
		OwnerID:        ownerID,
		Title:          a.Text,
		Date:           sug.Date,
		Time:           sug.Time,
		Duration:       sug.Duration,
		Category:       string(a.Category),
		IdempotencyKey: actID,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: create calendar event: %v", ErrPartialWrite, err)
	}

	actionID, err := m.actions.CreateLinkedAction(ctx, calendar.CreateLinkedActionRequest{
		OwnerID:         ownerID,
		Title:           a.Text,
		Date:            sug.Date,
		Time:            sug.Time,
		CalendarEventID: eventID,
		IdempotencyKey:  actID,
	})
	if err != nil {
		m.compensate(ctx, ownerID, actID, eventID)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: create linked action: %v", ErrPartialWrite, err)
	}

	a.Status = act.StatusScheduled
	a.ProposedDate = sug.Date
	a.ProposedTime = sug.Time
	a.CalendarEventID = eventID
	a.LinkedActionID = actionID
	a.ScheduleNote = fmt.Sprintf("Scheduled for %s at %s", sug.Date, sug.Time)

	if err := m.acts.UpdateAct(ctx, a); err != nil {
		m.compensate(ctx, ownerID, actID, eventID)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: persist scheduled status: %v", ErrPartialWrite, err)
	}

	if m.scheduledCounter != nil {
		m.scheduledCounter.Add(ctx, 1)
	}
	m.logger.Info("commitment scheduled",
		zap.String("act_id", actID),
		zap.String("date", sug.Date),
		zap.String("time", sug.Time),
		zap.String("event_id", eventID))
	return a, nil
}

// Complete implements Service.
func (m *Manager) Complete(ctx context.Context, actID string) (*act.Act, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.complete")
	defer span.End()
	span.SetAttributes(attribute.String("act_id", actID))

	m.locks.Lock(actID)
	defer m.locks.Unlock(actID)

	a, err := m.acts.GetAct(ctx, actID)
	if err != nil {
		return nil, err
	}
	if !act.CanTransition(a.Status, act.StatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete a %s commitment", ErrInvalidState, a.Status)
	}

	a.Status = act.StatusCompleted
	if err := m.acts.UpdateAct(ctx, a); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	m.logger.Info("commitment completed", zap.String("act_id", actID))
	return a, nil
}

// compensate best-effort deletes a calendar event created by a
// scheduling attempt that could not fully complete. Failures are
// logged only; the idempotency key on the next retry absorbs a
// leftover event.
func (m *Manager) compensate(ctx context.Context, ownerID, actID, eventID string) {
	if m.partialCounter != nil {
		m.partialCounter.Add(ctx, 1)
	}
	if err := m.events.DeleteEvent(ctx, ownerID, eventID); err != nil {
		m.logger.Warn("compensating event delete failed",
			zap.String("act_id", actID),
			zap.String("event_id", eventID),
			zap.Error(err))
		return
	}
	m.logger.Info("compensated partial schedule",
		zap.String("act_id", actID),
		zap.String("event_id", eventID))
}

var _ Service = (*Manager)(nil)
