package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/observability"
)

// Persistence backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Settings configures a skillgraph host.
type Settings struct {
	// HistoryLimit bounds the graph store's undo stack.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	Log           LogSettings           `yaml:"log" json:"log"`
	Persistence   PersistenceSettings   `yaml:"persistence" json:"persistence"`
	Observability ObservabilitySettings `yaml:"observability" json:"observability"`
	ExecLog       ExecLogSettings       `yaml:"execlog" json:"execlog"`
}

// LogSettings selects the slog handler.
type LogSettings struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// PersistenceSettings selects and configures the graph persistence backend.
type PersistenceSettings struct {
	Backend     string `yaml:"backend" json:"backend"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	RedisURL    string `yaml:"redis_url" json:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`
}

// ObservabilitySettings toggles OpenTelemetry instrumentation.
type ObservabilitySettings struct {
	Metrics bool `yaml:"metrics" json:"metrics"`
	Tracing bool `yaml:"tracing" json:"tracing"`
}

// ExecLogSettings sizes the execution log.
type ExecLogSettings struct {
	Capacity   int `yaml:"capacity" json:"capacity"`
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		HistoryLimit: 50,
		Log:          LogSettings{Level: "info", Format: "text"},
		Persistence: PersistenceSettings{
			Backend:     BackendMemory,
			SQLitePath:  "skillgraph.db",
			RedisPrefix: "skillgraph",
		},
		ExecLog: ExecLogSettings{Capacity: 1000, BufferSize: 256},
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", s.HistoryLimit))
	}
	if _, err := observability.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
	}
	switch s.Persistence.Backend {
	case BackendMemory:
	case BackendSQLite:
		if s.Persistence.SQLitePath == "" {
			errs = append(errs, errors.New("persistence.sqlite_path is required for the sqlite backend"))
		}
	case BackendRedis:
		if s.Persistence.RedisURL == "" {
			errs = append(errs, errors.New("persistence.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.backend: unknown backend %q", s.Persistence.Backend))
	}
	if s.ExecLog.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("execlog.capacity must be positive, got %d", s.ExecLog.Capacity))
	}
	if s.ExecLog.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("execlog.buffer_size must be positive, got %d", s.ExecLog.BufferSize))
	}
	return errors.Join(errs...)
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SKILLGRAPH_"

// ApplyEnv overrides fields from SKILLGRAPH_* variables found by lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	num("HISTORY_LIMIT", &s.HistoryLimit)
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)
	str("PERSISTENCE_BACKEND", &s.Persistence.Backend)
	str("SQLITE_PATH", &s.Persistence.SQLitePath)
	str("REDIS_URL", &s.Persistence.RedisURL)
	str("REDIS_PREFIX", &s.Persistence.RedisPrefix)
	flag("METRICS", &s.Observability.Metrics)
	flag("TRACING", &s.Observability.Tracing)
	num("EXECLOG_CAPACITY", &s.ExecLog.Capacity)
	num("EXECLOG_BUFFER", &s.ExecLog.BufferSize)

	return errors.Join(errs...)
}
