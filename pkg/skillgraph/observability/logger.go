// Package observability provides structured logging, metrics and tracing
// for skillgraph runs.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log* helper accepts a nil logger and does nothing.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a logger writing to w. format is "json" or "text";
// level is one of debug, info, warn, error.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// EnrichLogger adds run and node context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "upscale-1", "upscale")
//	enriched.Info("fetching model") // includes run_id, node_id, skill_id
func EnrichLogger(logger *slog.Logger, runID, nodeID, skillID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.String("skill_id", skillID),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID, mode string, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.String("mode", mode),
		slog.Int("nodes_selected", nodeCount),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, executed, skipped int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", executed),
		slog.Int("nodes_skipped", skipped),
	)
}

// LogRunError logs a failed or stopped run.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, failedNode string) {
	if logger == nil {
		return
	}
	logger.Error("run halted",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("failed_node", failedNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, skillID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("skill_id", skillID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64, outputs int) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("outputs", outputs),
	)
}

// LogNodeSkipped logs a node the walk did not execute.
func LogNodeSkipped(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("node skipped",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSnapshotPublished logs a new snapshot version.
func LogSnapshotPublished(logger *slog.Logger, nodeID, port string, version int64) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot published",
		slog.String("node_id", nodeID),
		slog.String("port", port),
		slog.Int64("version", version),
	)
}

// LogSaveConflict logs a rejected save (non-fatal).
func LogSaveConflict(logger *slog.Logger, projectID string, baseVersion, serverVersion int64) {
	if logger == nil {
		return
	}
	logger.Warn("save conflict",
		slog.String("project_id", projectID),
		slog.Int64("base_version", baseVersion),
		slog.Int64("server_version", serverVersion),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
