// Package config provides configuration loading for voxd.
//
// Configuration is loaded from a YAML file, then overridden with
// environment variables. Each section maps onto one service's own
// configuration at wiring time.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete voxd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Store         StoreConfig         `koanf:"store"`
	Capture       CaptureConfig       `koanf:"capture"`
	Extraction    ExtractionConfig    `koanf:"extraction"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Backend       BackendConfig       `koanf:"backend"`
	NATS          NATSConfig          `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// StoreConfig locates the sqlite database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// CaptureConfig bounds the local media spool.
type CaptureConfig struct {
	Dir      string `koanf:"dir"`
	MaxBytes int64  `koanf:"max_bytes"`
}

// ExtractionConfig selects the extraction backend.
type ExtractionConfig struct {
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
}

// SchedulerConfig bounds the slot search.
type SchedulerConfig struct {
	DayStart       string   `koanf:"day_start"`
	DayEnd         string   `koanf:"day_end"`
	Step           Duration `koanf:"step"`
	Buffer         Duration `koanf:"buffer"`
	SearchDays     int      `koanf:"search_days"`
	MaxSuggestions int      `koanf:"max_suggestions"`
}

// BackendConfig locates the product backend the pipeline reads
// calendars from and writes events, actions, and media to.
type BackendConfig struct {
	CalendarURL string   `koanf:"calendar_url"`
	MediaURL    string   `koanf:"media_url"`
	Timeout     Duration `koanf:"timeout"`

	// OAuth token endpoint and client credentials for the product
	// backend.
	TokenURL     string `koanf:"token_url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret Secret `koanf:"client_secret"`
}

// NATSConfig configures support-network notifications.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Capture.Dir == "" {
		return errors.New("capture spool directory is required")
	}
	if c.Capture.MaxBytes <= 0 {
		return errors.New("capture max bytes must be positive")
	}
	switch c.Extraction.Provider {
	case "llm", "heuristic", "disabled":
	default:
		return fmt.Errorf("unknown extraction provider: %q", c.Extraction.Provider)
	}
	if c.Extraction.Provider == "llm" && !c.Extraction.APIKey.IsSet() {
		return errors.New("extraction api key required for the llm provider")
	}
	if c.Scheduler.SearchDays < 1 {
		return errors.New("scheduler search days must be at least 1")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "voxd"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.local/share/voxd/voxd.db"
	}
	if cfg.Capture.Dir == "" {
		cfg.Capture.Dir = "~/.local/share/voxd/spool"
	}
	if cfg.Capture.MaxBytes == 0 {
		cfg.Capture.MaxBytes = 512 << 20
	}
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "heuristic"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = Duration(60 * time.Second)
	}
	if cfg.Scheduler.DayStart == "" {
		cfg.Scheduler.DayStart = "09:00"
	}
	if cfg.Scheduler.DayEnd == "" {
		cfg.Scheduler.DayEnd = "18:00"
	}
	if cfg.Scheduler.Step == 0 {
		cfg.Scheduler.Step = Duration(30 * time.Minute)
	}
	if cfg.Scheduler.Buffer == 0 {
		cfg.Scheduler.Buffer = Duration(15 * time.Minute)
	}
	if cfg.Scheduler.SearchDays == 0 {
		cfg.Scheduler.SearchDays = 3
	}
	if cfg.Scheduler.MaxSuggestions == 0 {
		cfg.Scheduler.MaxSuggestions = 5
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(10 * time.Second)
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
}
