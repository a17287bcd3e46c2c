package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/capture"

// SignInMessage is the actionable message surfaced when an upload is
// blocked by credentials. The payload is safe in the spool.
const SignInMessage = "saved locally, sign in to finish syncing"

// Service is the durable capture path: persist first, upload when
// credentials allow, never lose the payload.
type Service struct {
	spool    *Spool
	records  Records
	uploader Uploader
	creds    calendar.Credentials
	logger   *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	persistCounter  metric.Int64Counter
	uploadCounter   metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

// NewService creates the capture service.
func NewService(spool *Spool, records Records, uploader Uploader, creds calendar.Credentials, logger *zap.Logger) (*Service, error) {
	if spool == nil {
		return nil, fmt.Errorf("spool is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		spool:    spool,
		records:  records,
		uploader: uploader,
		creds:    creds,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.persistCounter, err = s.meter.Int64Counter(
		"voxd.capture.persisted_total",
		metric.WithDescription("Payloads persisted to the local spool"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		s.logger.Warn("failed to create persist counter", zap.Error(err))
	}

	s.uploadCounter, err = s.meter.Int64Counter(
		"voxd.capture.uploads_total",
		metric.WithDescription("Successful uploads to the media service"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		s.logger.Warn("failed to create upload counter", zap.Error(err))
	}

	s.fallbackCounter, err = s.meter.Int64Counter(
		"voxd.capture.credential_fallbacks_total",
		metric.WithDescription("Uploads deferred to the spool for credential reasons"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		s.logger.Warn("failed to create fallback counter", zap.Error(err))
	}
}

// PersistLocally writes the payload to the spool and records it as
// pending_local. This is the first and only mandatory step after a
// recording stops; everything downstream can fail without losing the
// payload.
func (s *Service) PersistLocally(ctx context.Context, media Media) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "capture.persist_locally")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", media.SessionID),
		attribute.Int("bytes", len(media.Payload)),
	)

	if len(media.Payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	sum := sha256.Sum256(media.Payload)
	rec := &Record{
		ID:         uuid.New().String(),
		SessionID:  media.SessionID,
		CapturedAt: media.CapturedAt,
		State:      StatePendingLocal,
		SizeBytes:  int64(len(media.Payload)),
		SHA256:     hex.EncodeToString(sum[:]),
	}

	path, err := s.spool.Write(rec.ID+".raw", media.Payload)
	if err != nil {
		if errors.Is(err, ErrStorageExhausted) {
			s.logger.Error("spool exhausted, payload rejected",
				zap.String("session_id", media.SessionID),
				zap.Int("bytes", len(media.Payload)))
		}
		return nil, err
	}
	rec.LocalPath = path

	if err := s.records.InsertMedia(ctx, rec); err != nil {
		s.spool.Remove(path)
		return nil, fmt.Errorf("record spooled payload: %w", err)
	}

	if s.persistCounter != nil {
		s.persistCounter.Add(ctx, 1)
	}
	s.logger.Info("payload spooled",
		zap.String("media_id", rec.ID),
		zap.String("session_id", media.SessionID),
		zap.Int64("bytes", rec.SizeBytes))
	return rec, nil
}

// AttemptUpload pushes a spooled payload to the remote media service.
// Invalid or near-expiry credentials get exactly one refresh attempt;
// if that fails the record stays pending_local and the error carries
// the sign-in message. Uploading an already uploaded record is a
// no-op returning the existing remote id.
func (s *Service) AttemptUpload(ctx context.Context, mediaID string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "capture.attempt_upload")
	defer span.End()
	span.SetAttributes(attribute.String("media_id", mediaID))

	rec, err := s.records.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if rec.State == StateUploaded {
		return rec, nil
	}

	if !s.creds.IsValid(ctx) && !s.creds.Refresh(ctx) {
		return s.deferUpload(ctx, rec)
	}

	rec.State = StateQueued
	if err := s.records.UpdateMedia(ctx, rec); err != nil {
		return nil, fmt.Errorf("mark queued: %w", err)
	}

	payload, err := s.spool.Read(rec.LocalPath)
	if err != nil {
		// Don't strand the record in queued; failed records stay on the
		// retry surface.
		rec.State = StateFailed
		if uerr := s.records.UpdateMedia(ctx, rec); uerr != nil {
			s.logger.Error("failed to record spool read failure",
				zap.String("media_id", rec.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("read spooled payload: %w", err)
	}

	remoteID, err := s.uploader.Upload(ctx, rec, payload)
	if err != nil {
		if errors.Is(err, calendar.ErrCredentialInvalid) {
			return s.deferUpload(ctx, rec)
		}
		rec.State = StateFailed
		if uerr := s.records.UpdateMedia(ctx, rec); uerr != nil {
			s.logger.Error("failed to record upload failure",
				zap.String("media_id", rec.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("upload media: %w", err)
	}

	rec.State = StateUploaded
	rec.RemoteID = remoteID
	localPath := rec.LocalPath
	rec.LocalPath = ""
	if err := s.records.UpdateMedia(ctx, rec); err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	// The remote copy is durable; the spool blob is reclaimed.
	if err := s.spool.Remove(localPath); err != nil {
		s.logger.Warn("failed to reclaim spool blob",
			zap.String("media_id", rec.ID), zap.Error(err))
	}

	if s.uploadCounter != nil {
		s.uploadCounter.Add(ctx, 1)
	}
	s.logger.Info("payload uploaded",
		zap.String("media_id", rec.ID),
		zap.String("remote_id", remoteID))
	return rec, nil
}

// deferUpload keeps the payload local after a credential failure.
func (s *Service) deferUpload(ctx context.Context, rec *Record) (*Record, error) {
	rec.State = StatePendingLocal
	if err := s.records.UpdateMedia(ctx, rec); err != nil {
		return nil, fmt.Errorf("mark pending: %w", err)
	}
	if s.fallbackCounter != nil {
		s.fallbackCounter.Add(ctx, 1)
	}
	s.logger.Warn("upload deferred, credentials unavailable",
		zap.String("media_id", rec.ID))
	return rec, fmt.Errorf("%w: %s", calendar.ErrCredentialInvalid, SignInMessage)
}

// Pending lists the owner's locally held payloads so the caller can
// retry them after sign-in.
func (s *Service) Pending(ctx context.Context, ownerID string) ([]*Record, error) {
	return s.records.PendingMedia(ctx, ownerID)
}
