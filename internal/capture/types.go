// Package capture guarantees that finished recordings are never
// silently lost. Media lands in a durable local spool the instant
// recording stops; upload to the remote media service happens
// opportunistically and falls back to the spool when credentials are
// unavailable, surfacing an actionable signal instead of dropping the
// recording.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorageExhausted is returned when the local spool has no
	// capacity left. Reported, not retried.
	ErrStorageExhausted = errors.New("local capture storage exhausted")

	// ErrNotFound is returned when the media id is unknown.
	ErrNotFound = errors.New("captured media not found")
)

// UploadState tracks where a captured payload currently lives.
type UploadState string

const (
	// StatePendingLocal means the payload is held in the local spool,
	// waiting for valid credentials.
	StatePendingLocal UploadState = "pending_local"

	// StateQueued means an upload attempt is in flight.
	StateQueued UploadState = "queued"

	// StateUploaded means the remote media service owns the payload.
	StateUploaded UploadState = "uploaded"

	// StateFailed means the last upload attempt failed for a reason
	// other than credentials.
	StateFailed UploadState = "failed"
)

// Media is a raw captured payload before it has a spool record.
type Media struct {
	SessionID  string
	CapturedAt time.Time
	Payload    []byte
}

// Record is the durable state of one captured payload. The blob bytes
// live in the spool directory; the record tracks them.
type Record struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	CapturedAt time.Time   `json:"captured_at"`
	State      UploadState `json:"state"`
	LocalPath  string      `json:"local_path,omitempty"`
	RemoteID   string      `json:"remote_id,omitempty"`
	SizeBytes  int64       `json:"size_bytes"`
	SHA256     string      `json:"sha256"`
}

// Records is the persistence the capture store needs. Implemented by
// the sqlite store.
type Records interface {
	InsertMedia(ctx context.Context, rec *Record) error
	GetMedia(ctx context.Context, id string) (*Record, error)
	UpdateMedia(ctx context.Context, rec *Record) error

	// PendingMedia lists the owner's locally held items, including
	// failed and interrupted uploads, so they can be retried once
	// credentials are restored.
	PendingMedia(ctx context.Context, ownerID string) ([]*Record, error)
}

// Uploader hands a payload to the remote media service.
type Uploader interface {
	Upload(ctx context.Context, rec *Record, payload []byte) (remoteID string, err error)
}
