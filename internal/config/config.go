// Package config loads the CLI configuration from environment
// variables, with tagged defaults, and validates it on startup to
// fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Backend kinds accepted by BackendConfig.Kind.
const (
	BackendDynamo   = "dynamo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all CLI configuration.
type Config struct {
	Backend BackendConfig
	Cache   CacheConfig
	Logging LoggingConfig
}

// BackendConfig selects and tunes the session backend.
type BackendConfig struct {
	// Kind picks the session backend: dynamo, postgres or memory (default: dynamo)
	Kind string `env:"AUDITORY_BACKEND" default:"dynamo"`

	// Table is the DynamoDB sessions table (default: auditory_sessions)
	Table string `env:"AUDITORY_TABLE" default:"auditory_sessions"`

	// PollInterval is how often the dynamo watch polls (default: 2500ms)
	PollInterval time.Duration `env:"AUDITORY_POLL_INTERVAL" default:"2500ms"`

	// DSN is the PostgreSQL connection string (postgres backend only)
	DSN string `env:"AUDITORY_POSTGRES_DSN" envAlt:"DATABASE_URL"`

	// Channel is the PostgreSQL NOTIFY channel (default: sessions_changed)
	Channel string `env:"AUDITORY_POSTGRES_CHANNEL" default:"sessions_changed"`
}

// CacheConfig locates the local inventory cache.
type CacheConfig struct {
	// Path is the cache directory. Empty picks <home>/.auditory
	Path string `env:"AUDITORY_CACHE_PATH"`

	// FlushInterval is the debounce window for cache writes (default: 750ms)
	FlushInterval time.Duration `env:"AUDITORY_CACHE_FLUSH_INTERVAL" default:"750ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend.Kind {
	case BackendDynamo, BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("AUDITORY_BACKEND (%q) must be one of: dynamo, postgres, memory", c.Backend.Kind))
	}
	if c.Backend.Kind == BackendPostgres && c.Backend.DSN == "" {
		errs = append(errs, "AUDITORY_POSTGRES_DSN is required for the postgres backend")
	}
	if c.Backend.PollInterval <= 0 {
		errs = append(errs, "AUDITORY_POLL_INTERVAL must be positive")
	}
	if c.Cache.FlushInterval <= 0 {
		errs = append(errs, "AUDITORY_CACHE_FLUSH_INTERVAL must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
