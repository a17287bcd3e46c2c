package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

// stubBackend scripts one backend outcome.
type stubBackend struct {
	result *Result
	err    error
	delay  time.Duration
}

func (s *stubBackend) method() act.Method { return act.MethodHeuristic }

func (s *stubBackend) run(ctx context.Context, req Request) (*Result, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.result, s.err
}

func newTestGateway(t *testing.T, b backend) *Gateway {
	t.Helper()
	g, err := NewGateway(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	g.backend = b
	return g
}

func TestGateway_Success(t *testing.T) {
	want := &Result{
		Summary: "ok",
		Acts:    []act.Act{{ID: "a1", Text: "Do the thing"}},
		Method:  act.MethodHeuristic,
	}
	g := newTestGateway(t, &stubBackend{result: want})

	res, err := g.Extract(context.Background(), Request{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, want, res)
}

func TestGateway_BackendFailureDegrades(t *testing.T) {
	g := newTestGateway(t, &stubBackend{err: errors.New("boom")})

	res, err := g.Extract(context.Background(), Request{SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionDegraded)
	require.NotNil(t, res)
	assert.Empty(t, res.Acts)
}

func TestGateway_ZeroActsDegradesButKeepsSummary(t *testing.T) {
	g := newTestGateway(t, &stubBackend{result: &Result{
		Summary:  "a quiet chat",
		Insights: []Insight{{Type: InsightPractical, Text: "nothing due", Importance: 5}},
		Method:   act.MethodHeuristic,
	}})

	res, err := g.Extract(context.Background(), Request{SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionDegraded)
	require.NotNil(t, res)
	assert.Equal(t, "a quiet chat", res.Summary)
	assert.Len(t, res.Insights, 1)
	assert.Empty(t, res.Acts)
}

func TestGateway_TimeoutDegrades(t *testing.T) {
	g := newTestGateway(t, &stubBackend{delay: time.Second, result: &Result{Summary: "late"}})
	g.timeout = 10 * time.Millisecond

	res, err := g.Extract(context.Background(), Request{SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionDegraded)
	require.NotNil(t, res)
}

func TestGateway_DisabledProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "disabled"
	g, err := NewGateway(cfg, zap.NewNop())
	require.NoError(t, err)

	res, err := g.Extract(context.Background(), Request{SessionID: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionDegraded)
	require.NotNil(t, res)
}

func TestNewGateway_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "oracle"
	_, err := NewGateway(cfg, zap.NewNop())
	assert.Error(t, err)
}
