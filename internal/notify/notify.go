// Package notify announces pipeline milestones to the owner's support
// network over NATS. Delivery is fire-and-forget: a notification
// failure is logged and never fails the operation that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventType names a pipeline milestone.
type EventType string

const (
	EventRecordingStarted   EventType = "recording_started"
	EventExtractionComplete EventType = "extraction_complete"
)

// Notifier announces an event for an owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, event EventType, payload any)
}

// NATSNotifier publishes events on `voxd.<owner>.<event>`.
type NATSNotifier struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSNotifier creates a NATS-backed notifier.
func NewNATSNotifier(nc *nats.Conn, logger *zap.Logger) (*NATSNotifier, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{nc: nc, logger: logger}, nil
}

// Notify implements Notifier. Errors are logged only; downstream
// consumers are collaborators, not dependencies.
func (n *NATSNotifier) Notify(ctx context.Context, ownerID string, event EventType, payload any) {
	msg := map[string]any{
		"event":    string(event),
		"owner_id": ownerID,
		"at":       time.Now().UTC().Format(time.RFC3339),
		"payload":  payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("failed to marshal notification",
			zap.String("event", string(event)), zap.Error(err))
		return
	}

	subject := fmt.Sprintf("voxd.%s.%s", ownerID, event)
	if err := n.nc.Publish(subject, data); err != nil {
		n.logger.Warn("failed to publish notification",
			zap.String("subject", subject), zap.Error(err))
		return
	}

	n.logger.Debug("notification published", zap.String("subject", subject))
}

// NopNotifier discards all notifications. Used when NATS is not
// configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, ownerID string, event EventType, payload any) {}

var (
	_ Notifier = (*NATSNotifier)(nil)
	_ Notifier = NopNotifier{}
)
