// Package config loads service configuration from an optional JSON file with
// environment-variable overrides, and validates the result before the
// service starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// Config is the full configuration for the diagram editor service.
type Config struct {
	// NATSURL is the server used for diagram persistence.
	NATSURL string `json:"nats_url"`
	// Bucket is the KV bucket holding persisted diagrams.
	Bucket string `json:"bucket"`
	// ListenAddr serves the websocket gateway and metrics endpoint.
	ListenAddr string `json:"listen_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// HistoryDepth bounds the graph store undo history.
	HistoryDepth int `json:"history_depth"`
	// FrameIntervalMS is the position batcher flush interval in milliseconds.
	FrameIntervalMS int `json:"frame_interval_ms"`
	// CacheSize bounds the canvas adapter conversion caches.
	CacheSize int `json:"cache_size"`
}

// FrameInterval returns the batcher flush interval as a duration.
func (c Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		NATSURL:         "nats://localhost:4222",
		Bucket:          "dipeo_diagrams",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		HistoryDepth:    50,
		FrameIntervalMS: 16,
		CacheSize:       1024,
	}
}

// Load builds the configuration: defaults, then the JSON file at path (if
// path is non-empty), then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapInvalid(err, "config", "Load", "file read")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapInvalid(err, "config", "Load", "json parse")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from DIPEO_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DIPEO_NATS_URL"); v != "" {
		c.NATSURL = v
	}
	if v := os.Getenv("DIPEO_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("DIPEO_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DIPEO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DIPEO_HISTORY_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryDepth = n
		}
	}
	if v := os.Getenv("DIPEO_FRAME_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FrameIntervalMS = n
		}
	}
	if v := os.Getenv("DIPEO_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheSize = n
		}
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
			"config", "Validate", "configuration check")
	}

	if c.NATSURL == "" {
		return invalid("nats_url is required")
	}
	if c.Bucket == "" {
		return invalid("bucket is required")
	}
	if c.ListenAddr == "" {
		return invalid("listen_addr is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.HistoryDepth < 1 {
		return invalid("history_depth must be at least 1, got %d", c.HistoryDepth)
	}
	if c.FrameIntervalMS <= 0 {
		return invalid("frame_interval_ms must be positive, got %d", c.FrameIntervalMS)
	}
	if c.CacheSize < 1 {
		return invalid("cache_size must be at least 1, got %d", c.CacheSize)
	}
	return nil
}
