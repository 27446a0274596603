// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting the stigmergy process reads at startup.
// Command-line flags override these values.
type Config struct {
	DB             string        `env:"STIGMERGY_DB" envDefault:"stigmergy.db"`
	InvokeTimeout  time.Duration `env:"STIGMERGY_INVOKE_TIMEOUT" envDefault:"30s"`
	Workers        int           `env:"STIGMERGY_WORKERS" envDefault:"4"`
	BidParallelism int           `env:"STIGMERGY_BID_PARALLELISM" envDefault:"8"`
	LogLevel       string        `env:"STIGMERGY_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"STIGMERGY_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and checks it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("STIGMERGY_DB must not be empty")
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("STIGMERGY_INVOKE_TIMEOUT must be positive, got %s", c.InvokeTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("STIGMERGY_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.BidParallelism < 1 {
		return fmt.Errorf("STIGMERGY_BID_PARALLELISM must be at least 1, got %d", c.BidParallelism)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("STIGMERGY_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Logger builds the process logger. verbose forces debug level.
func (c Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
