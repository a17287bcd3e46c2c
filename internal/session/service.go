package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
	"github.com/fyrsmithlabs/voxd/internal/capture"
	"github.com/fyrsmithlabs/voxd/internal/extraction"
	"github.com/fyrsmithlabs/voxd/internal/locks"
	"github.com/fyrsmithlabs/voxd/internal/notify"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/session"

// calendarWindowDays is how far ahead the extraction request's
// read-only calendar window reaches.
const calendarWindowDays = 14

// Captures is the slice of the capture service Stop depends on.
type Captures interface {
	PersistLocally(ctx context.Context, media capture.Media) (*capture.Record, error)
	AttemptUpload(ctx context.Context, mediaID string) (*capture.Record, error)
}

// Service drives recording sessions from start through extraction.
type Service struct {
	store     Store
	captures  Captures
	extractor extraction.Service
	events    calendar.Reader
	notifier  notify.Notifier
	locks     *locks.KeyedMutex
	logger    *zap.Logger

	clock          func() time.Time
	extractTimeout time.Duration

	// processing tracks in-flight extraction goroutines so shutdown
	// and tests can wait for them.
	processing sync.WaitGroup

	tracer        trace.Tracer
	meter         metric.Meter
	startCounter  metric.Int64Counter
	stopCounter   metric.Int64Counter
	degradedGauge metric.Int64Counter
}

// NewService creates the session service.
func NewService(store Store, captures Captures, extractor extraction.Service, events calendar.Reader, notifier notify.Notifier, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if captures == nil {
		return nil, fmt.Errorf("capture service is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extraction service is required")
	}
	if events == nil {
		return nil, fmt.Errorf("calendar reader is required")
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:          store,
		captures:       captures,
		extractor:      extractor,
		events:         events,
		notifier:       notifier,
		locks:          locks.NewKeyedMutex(),
		logger:         logger,
		clock:          time.Now,
		extractTimeout: 2 * time.Minute,
		tracer:         otel.Tracer(instrumentationName),
		meter:          otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.startCounter, err = s.meter.Int64Counter(
		"voxd.session.started_total",
		metric.WithDescription("Recording sessions started"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		s.logger.Warn("failed to create start counter", zap.Error(err))
	}

	s.stopCounter, err = s.meter.Int64Counter(
		"voxd.session.stopped_total",
		metric.WithDescription("Recording sessions stopped"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		s.logger.Warn("failed to create stop counter", zap.Error(err))
	}

	s.degradedGauge, err = s.meter.Int64Counter(
		"voxd.session.degraded_total",
		metric.WithDescription("Sessions that completed with degraded extraction"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		s.logger.Warn("failed to create degraded counter", zap.Error(err))
	}
}

// Start begins a new recording session for the owner. A second active
// session for the same owner fails with ErrSessionConflict; the prior
// session must be stopped explicitly.
func (s *Service) Start(ctx context.Context, ownerID string, meta Meta) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.start")
	defer span.End()
	span.SetAttributes(attribute.String("owner_id", ownerID))

	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	sess := &Session{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Title:        meta.Title,
		Participants: meta.Participants,
		ContextTag:   meta.ContextTag,
		State:        StateRecording,
		Active:       true,
		StartedAt:    s.clock().UTC(),
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if s.startCounter != nil {
		s.startCounter.Add(ctx, 1)
	}
	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("owner_id", ownerID),
		zap.String("context_tag", string(meta.ContextTag)))

	s.notifier.Notify(ctx, ownerID, notify.EventRecordingStarted, map[string]any{
		"session_id": sess.ID,
		"title":      sess.Title,
	})
	return sess, nil
}

// Pause suspends recording. Valid only from recording.
func (s *Service) Pause(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.pause")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateRecording {
		return nil, fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, sess.State)
	}

	now := s.clock().UTC()
	sess.State = StatePaused
	sess.PausedAt = &now
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("session paused", zap.String("session_id", id))
	return sess, nil
}

// Resume continues recording. Valid only from paused.
func (s *Service) Resume(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.resume")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StatePaused || sess.PausedAt == nil {
		return nil, fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, sess.State)
	}

	sess.PausedTotal += s.clock().UTC().Sub(*sess.PausedAt)
	sess.PausedAt = nil
	sess.State = StateRecording
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("session resumed", zap.String("session_id", id))
	return sess, nil
}

// Stop ends the recording. The payload is made durable through the
// capture path before extraction is allowed to start; extraction then
// runs detached from the caller's context so results attach even if
// the caller has gone away.
func (s *Service) Stop(ctx context.Context, id string, req StopRequest) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.stop")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", id))

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateRecording && sess.State != StatePaused {
		return nil, fmt.Errorf("%w: cannot stop from %s", ErrInvalidTransition, sess.State)
	}

	now := s.clock().UTC()
	if sess.PausedAt != nil {
		sess.PausedTotal += now.Sub(*sess.PausedAt)
		sess.PausedAt = nil
	}
	sess.EndedAt = &now
	sess.State = StateStopped
	sess.Active = false
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	// Durability first. If the payload cannot be spooled the session
	// fails outright; extraction never races an unpersisted capture.
	var rec *capture.Record
	if len(req.Payload) > 0 {
		rec, err = s.captures.PersistLocally(ctx, capture.Media{
			SessionID:  id,
			CapturedAt: sess.StartedAt,
			Payload:    req.Payload,
		})
		if err != nil {
			sess.State = StateFailed
			if uerr := s.store.UpdateSession(ctx, sess); uerr != nil {
				s.logger.Error("failed to record capture failure",
					zap.String("session_id", id), zap.Error(uerr))
			}
			return nil, fmt.Errorf("persist capture: %w", err)
		}
	} else if req.Transcript == "" {
		sess.State = StateFailed
		if uerr := s.store.UpdateSession(ctx, sess); uerr != nil {
			s.logger.Error("failed to record capture failure",
				zap.String("session_id", id), zap.Error(uerr))
		}
		return nil, fmt.Errorf("stop requires a payload or a transcript")
	}

	sess.State = StateProcessing
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	if s.stopCounter != nil {
		s.stopCounter.Add(ctx, 1)
	}
	s.logger.Info("session stopped",
		zap.String("session_id", id),
		zap.Duration("elapsed", sess.Elapsed(now)))

	s.processing.Add(1)
	go s.process(*sess, rec, req.Transcript)

	return sess, nil
}

// Wait blocks until in-flight extraction goroutines finish. Called on
// shutdown.
func (s *Service) Wait() {
	s.processing.Wait()
}

// process runs extraction for a stopped session on a detached context.
func (s *Service) process(sess Session, rec *capture.Record, transcript string) {
	defer s.processing.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.extractTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "session.process")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sess.ID))

	audioRef := ""
	if rec != nil {
		// Opportunistic upload; a credential failure keeps the payload
		// local and extraction proceeds on the transcript if there is
		// one.
		uploaded, err := s.captures.AttemptUpload(ctx, rec.ID)
		switch {
		case err == nil:
			audioRef = uploaded.RemoteID
		case errors.Is(err, calendar.ErrCredentialInvalid):
			s.logger.Warn("upload deferred, continuing with local payload",
				zap.String("session_id", sess.ID))
		default:
			s.logger.Warn("upload failed, continuing with local payload",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	result, err := s.extractor.Extract(ctx, extraction.Request{
		SessionID:  sess.ID,
		OwnerID:    sess.OwnerID,
		Transcript: transcript,
		AudioRef:   audioRef,
		CapturedAt: sess.StartedAt,
		Calendar:   s.calendarWindow(ctx, sess.OwnerID),
	})

	sess.State = StateReady
	if err != nil {
		// Degraded, not failed: the session completes with whatever
		// summary and insights survived and an empty act list.
		sess.Degraded = true
		if s.degradedGauge != nil {
			s.degradedGauge.Add(ctx, 1)
		}
		s.logger.Warn("session completed degraded",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	if result != nil {
		sess.Summary = result.Summary
		sess.Insights = result.Insights
	}

	var acts []act.Act
	if result != nil {
		acts = result.Acts
	}
	if err := s.store.SaveExtraction(ctx, &sess, acts); err != nil {
		s.logger.Error("failed to save extraction",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	s.notifier.Notify(ctx, sess.OwnerID, notify.EventExtractionComplete, map[string]any{
		"session_id": sess.ID,
		"acts":       len(acts),
		"degraded":   sess.Degraded,
	})
}

// calendarWindow reads the owner's next two weeks of events for the
// extraction request. Failures degrade to an empty window.
func (s *Service) calendarWindow(ctx context.Context, ownerID string) []calendar.Event {
	now := s.clock().UTC()
	events, err := s.events.ListEvents(ctx, ownerID, now, now.AddDate(0, 0, calendarWindowDays))
	if err != nil {
		s.logger.Warn("calendar window unavailable",
			zap.String("owner_id", ownerID), zap.Error(err))
		return nil
	}
	return events
}

// Get loads one session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.GetSession(ctx, id)
}

// List returns the owner's sessions, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Session, error) {
	return s.store.ListSessions(ctx, ownerID)
}

// Archive hides a session from listings. Sessions are never deleted.
func (s *Service) Archive(ctx context.Context, id string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	return s.store.ArchiveSession(ctx, id)
}
