// Package http provides the HTTP API for voxd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/capture"
	"github.com/fyrsmithlabs/voxd/internal/lifecycle"
	"github.com/fyrsmithlabs/voxd/internal/logging"
	"github.com/fyrsmithlabs/voxd/internal/scheduler"
	"github.com/fyrsmithlabs/voxd/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// ActReader is the act read access the API needs. Implemented by the
// sqlite store.
type ActReader interface {
	GetAct(ctx context.Context, id string) (*act.Act, error)
	ListActs(ctx context.Context, sessionID string) ([]*act.Act, error)
}

// Sessions is the session surface the API needs.
type Sessions interface {
	Start(ctx context.Context, ownerID string, meta session.Meta) (*session.Session, error)
	Pause(ctx context.Context, id string) (*session.Session, error)
	Resume(ctx context.Context, id string) (*session.Session, error)
	Stop(ctx context.Context, id string, req session.StopRequest) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, ownerID string) ([]*session.Session, error)
	Archive(ctx context.Context, id string) error
}

// Captures is the capture surface the API needs.
type Captures interface {
	AttemptUpload(ctx context.Context, mediaID string) (*capture.Record, error)
	Pending(ctx context.Context, ownerID string) ([]*capture.Record, error)
}

// Deps bundles the services the server fronts.
type Deps struct {
	Sessions  Sessions
	Acts      ActReader
	Lifecycle lifecycle.Service
	Scheduler scheduler.Service
	Captures  Captures
}

// Server provides HTTP endpoints for voxd.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("sessions service cannot be nil")
	}
	if deps.Acts == nil {
		return nil, fmt.Errorf("act reader cannot be nil")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service cannot be nil")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if deps.Captures == nil {
		return nil, fmt.Errorf("capture service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9180,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(rid) {
				ctx = logging.WithRequestID(ctx, rid)
				c.SetRequest(req.WithContext(ctx))
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/pause", s.handlePauseSession)
	v1.POST("/sessions/:id/resume", s.handleResumeSession)
	v1.POST("/sessions/:id/stop", s.handleStopSession)
	v1.POST("/sessions/:id/archive", s.handleArchiveSession)
	v1.GET("/sessions/:id/acts", s.handleListActs)

	v1.GET("/acts/:id/suggestions", s.handleSuggestions)
	v1.POST("/acts/:id/confirm", s.handleConfirmAct)
	v1.POST("/acts/:id/schedule", s.handleScheduleAct)
	v1.POST("/acts/:id/complete", s.handleCompleteAct)

	v1.POST("/media/:id/upload", s.handleUploadMedia)
	v1.GET("/media/pending", s.handlePendingMedia)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
