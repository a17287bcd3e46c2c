package extraction

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

const instrumentationName = "github.com/fyrsmithlabs/voxd/internal/extraction"

// backend is one extraction implementation behind the gateway.
type backend interface {
	run(ctx context.Context, req Request) (*Result, error)
	method() act.Method
}

// Gateway wraps a backend with the degraded-result contract: a failed
// or empty extraction still yields a Result (with whatever summary and
// insights survived) wrapped in ErrExtractionDegraded, so the session
// completes visibly degraded instead of failing.
type Gateway struct {
	backend backend
	timeout time.Duration
	logger  *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	extractCounter  metric.Int64Counter
	degradedCounter metric.Int64Counter
}

// NewGateway creates the extraction gateway for the configured
// provider.
func NewGateway(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var b backend
	switch cfg.Provider {
	case "llm":
		llm, err := newLLMExtractor(cfg)
		if err != nil {
			return nil, err
		}
		b = llm
	case "", "heuristic":
		b = &heuristicExtractor{}
	case "disabled":
		b = nil
	default:
		return nil, fmt.Errorf("unknown extraction provider: %q", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}

	g := &Gateway{
		backend: b,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	g.initMetrics()
	return g, nil
}

func (g *Gateway) initMetrics() {
	var err error

	g.extractCounter, err = g.meter.Int64Counter(
		"voxd.extraction.requests_total",
		metric.WithDescription("Total extraction requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		g.logger.Warn("failed to create extraction counter", zap.Error(err))
	}

	g.degradedCounter, err = g.meter.Int64Counter(
		"voxd.extraction.degraded_total",
		metric.WithDescription("Extractions that completed degraded"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		g.logger.Warn("failed to create degraded counter", zap.Error(err))
	}
}

// Extract runs the backend under the configured timeout. On any
// backend failure, including a schema violation or an empty act list
// produced by a nominally successful call, it returns a degraded
// Result and ErrExtractionDegraded.
func (g *Gateway) Extract(ctx context.Context, req Request) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "extraction.extract")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.Int("calendar_events", len(req.Calendar)),
	)
	if g.extractCounter != nil {
		g.extractCounter.Add(ctx, 1)
	}

	if g.backend == nil {
		return g.degraded(ctx, span, req, fmt.Errorf("extraction disabled"))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.backend.run(ctx, req)
	if err != nil {
		return g.degraded(ctx, span, req, err)
	}
	if len(result.Acts) == 0 {
		// Zero acts from a successful call is still a degraded result
		// per contract; the summary and insights are kept.
		g.logger.Info("extraction returned no acts",
			zap.String("session_id", req.SessionID))
		if g.degradedCounter != nil {
			g.degradedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("reason", "empty"),
			))
		}
		return result, fmt.Errorf("%w: no acts extracted", ErrExtractionDegraded)
	}

	g.logger.Info("extraction complete",
		zap.String("session_id", req.SessionID),
		zap.Int("acts", len(result.Acts)),
		zap.Int("insights", len(result.Insights)),
		zap.String("method", string(result.Method)))

	span.SetAttributes(attribute.Int("acts", len(result.Acts)))
	return result, nil
}

func (g *Gateway) degraded(ctx context.Context, span trace.Span, req Request, cause error) (*Result, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	g.logger.Warn("extraction degraded",
		zap.String("session_id", req.SessionID),
		zap.Error(cause))
	if g.degradedCounter != nil {
		g.degradedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", "failure"),
		))
	}

	method := act.MethodLLM
	if g.backend != nil {
		method = g.backend.method()
	}
	return &Result{Acts: []act.Act{}, Method: method},
		fmt.Errorf("%w: %v", ErrExtractionDegraded, cause)
}

var _ Service = (*Gateway)(nil)
