package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSNotifier(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("voxd.owner-1.extraction_complete")
	require.NoError(t, err)

	n, err := NewNATSNotifier(nc, zap.NewNop())
	require.NoError(t, err)

	n.Notify(context.Background(), "owner-1", EventExtractionComplete, map[string]any{
		"session_id": "sess-1",
		"acts":       3,
	})

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "extraction_complete", got["event"])
	assert.Equal(t, "owner-1", got["owner_id"])
	assert.NotEmpty(t, got["at"])

	payload, ok := got["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sess-1", payload["session_id"])
}

func TestNATSNotifier_SubjectPerOwnerAndEvent(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("voxd.owner-2.>")
	require.NoError(t, err)

	n, err := NewNATSNotifier(nc, zap.NewNop())
	require.NoError(t, err)

	n.Notify(context.Background(), "owner-1", EventRecordingStarted, nil)
	n.Notify(context.Background(), "owner-2", EventRecordingStarted, nil)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "voxd.owner-2.recording_started", msg.Subject)

	_, err = sub.NextMsg(200 * time.Millisecond)
	assert.Error(t, err, "owner-1 traffic must not reach owner-2 subjects")
}

func TestNATSNotifier_ClosedConnectionDoesNotPanic(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	n, err := NewNATSNotifier(nc, zap.NewNop())
	require.NoError(t, err)

	nc.Close()
	n.Notify(context.Background(), "owner-1", EventRecordingStarted, nil)
}
