package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fyrsmithlabs/voxd/internal/calendar"
	"github.com/fyrsmithlabs/voxd/internal/capture"
	"github.com/fyrsmithlabs/voxd/internal/config"
	"github.com/fyrsmithlabs/voxd/internal/extraction"
	voxdhttp "github.com/fyrsmithlabs/voxd/internal/http"
	"github.com/fyrsmithlabs/voxd/internal/lifecycle"
	"github.com/fyrsmithlabs/voxd/internal/logging"
	"github.com/fyrsmithlabs/voxd/internal/notify"
	"github.com/fyrsmithlabs/voxd/internal/scheduler"
	"github.com/fyrsmithlabs/voxd/internal/session"
	"github.com/fyrsmithlabs/voxd/internal/store"
	"github.com/fyrsmithlabs/voxd/internal/telemetry"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return run(ctx)
}

// run starts the voxd daemon and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize telemetry and logger
//  3. Open the sqlite store and local spool
//  4. Build the backend clients (calendar, media upload, oauth)
//  5. Wire the domain services
//  6. Start the HTTP server
//  7. Perform graceful shutdown on context cancellation
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.ServiceVersion = version

	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zlog := logger.Underlying()

	logger.Info(ctx, "starting voxd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(ctx, cfg, zlog)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	svcs, err := initServices(cfg, deps, zlog)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	watcher, err := capture.NewWatcher(deps.spool, deps.store, zlog)
	if err != nil {
		return fmt.Errorf("create spool watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start spool watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	srv, err := voxdhttp.NewServer(voxdhttp.Deps{
		Sessions:  svcs.sessions,
		Acts:      deps.store,
		Lifecycle: svcs.lifecycle,
		Scheduler: svcs.scheduler,
		Captures:  svcs.captures,
	}, logger, &voxdhttp.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
	}

	// Let in-flight extractions finish so stopped sessions reach a
	// terminal state before the store closes.
	svcs.sessions.Wait()

	return nil
}

// dependencies holds infrastructure the services are built on.
type dependencies struct {
	store    *store.Store
	spool    *capture.Spool
	calendar *calendar.Client
	creds    *calendar.TokenCredentials
	uploader *capture.HTTPUploader
	natsConn *nats.Conn
	notifier notify.Notifier
	logger   *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// services holds the wired domain services.
type services struct {
	sessions  *session.Service
	captures  *capture.Service
	scheduler *scheduler.Scheduler
	lifecycle *lifecycle.Manager
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	spool, err := capture.NewSpool(capture.Config{
		Dir:      cfg.Capture.Dir,
		MaxBytes: cfg.Capture.MaxBytes,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open capture spool: %w", err)
	}

	oauthCfg := &clientcredentials.Config{
		TokenURL:     cfg.Backend.TokenURL,
		ClientID:     cfg.Backend.ClientID,
		ClientSecret: cfg.Backend.ClientSecret.Value(),
	}
	var tokenSource oauth2.TokenSource
	if cfg.Backend.TokenURL != "" {
		tokenSource = oauthCfg.TokenSource(ctx)
	} else {
		// No token endpoint configured; run against a backend that
		// accepts anonymous requests (local development).
		tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "anonymous"})
	}
	creds := calendar.NewTokenCredentials(tokenSource, logger)

	calClient, err := calendar.NewClient(calendar.ClientConfig{
		BaseURL:     cfg.Backend.CalendarURL,
		Timeout:     cfg.Backend.Timeout.Duration(),
		TokenSource: tokenSource,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create calendar client: %w", err)
	}

	uploader, err := capture.NewHTTPUploader(capture.UploaderConfig{
		BaseURL:     cfg.Backend.MediaURL,
		Timeout:     cfg.Backend.Timeout.Duration(),
		TokenSource: tokenSource,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create media uploader: %w", err)
	}

	var nc *nats.Conn
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

		notifier, err = notify.NewNATSNotifier(nc, logger)
		if err != nil {
			nc.Close()
			_ = st.Close()
			return nil, fmt.Errorf("create notifier: %w", err)
		}
	}

	return &dependencies{
		store:    st,
		spool:    spool,
		calendar: calClient,
		creds:    creds,
		uploader: uploader,
		natsConn: nc,
		notifier: notifier,
		logger:   logger,
	}, nil
}

func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*services, error) {
	captures, err := capture.NewService(deps.spool, deps.store, deps.uploader, deps.creds, logger)
	if err != nil {
		return nil, fmt.Errorf("create capture service: %w", err)
	}

	gateway, err := extraction.NewGateway(extraction.Config{
		Provider: cfg.Extraction.Provider,
		Model:    cfg.Extraction.Model,
		APIKey:   cfg.Extraction.APIKey.Value(),
		BaseURL:  cfg.Extraction.BaseURL,
		Timeout:  cfg.Extraction.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create extraction gateway: %w", err)
	}

	sched, err := scheduler.NewScheduler(scheduler.Config{
		DayStart:       cfg.Scheduler.DayStart,
		DayEnd:         cfg.Scheduler.DayEnd,
		Step:           cfg.Scheduler.Step.Duration(),
		Buffer:         cfg.Scheduler.Buffer.Duration(),
		SearchDays:     cfg.Scheduler.SearchDays,
		MaxSuggestions: cfg.Scheduler.MaxSuggestions,
	}, deps.calendar, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	mgr, err := lifecycle.NewManager(deps.store, deps.calendar, deps.calendar, logger)
	if err != nil {
		return nil, fmt.Errorf("create lifecycle manager: %w", err)
	}

	sessions, err := session.NewService(deps.store, captures, gateway, deps.calendar, deps.notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("create session service: %w", err)
	}

	return &services{
		sessions:  sessions,
		captures:  captures,
		scheduler: sched,
		lifecycle: mgr,
	}, nil
}
