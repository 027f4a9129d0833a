package skillgraph

import (
	"log/slog"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/config"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/observability"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records run and node metrics through m.
// Default: observability.NoopMetrics
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracing creates a span per run and per executed node through spans.
// Default: observability.NoopSpanManager
func WithTracing(spans observability.SpanManager) Option {
	return func(r *Runner) {
		if spans != nil {
			r.spans = spans
		}
	}
}

// WithSettings turns on OpenTelemetry metrics and tracing on the global
// providers according to s.
//
// Example:
//
//	settings, err := config.Load("skillgraph.yaml")
//	runner := skillgraph.NewRunner(g, snaps, recipes, skills, log,
//	    skillgraph.WithSettings(settings))
func WithSettings(s config.Settings) Option {
	return func(r *Runner) {
		if s.Observability.Metrics {
			r.metrics = observability.NewMetricsRecorder()
		}
		if s.Observability.Tracing {
			r.spans = observability.NewSpanManager()
		}
	}
}

// runConfig holds per-run configuration.
type runConfig struct {
	runID string
	stop  func() bool
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithRunID sets the run ID recorded in recipes and log events.
// Default: a random UUID
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithStopFunc sets a predicate polled before each node. When it returns
// true the run halts with a *CancellationError; the node that was running
// when the stop was requested completes first.
//
// Example:
//
//	var stop atomic.Bool
//	go func() { <-cancelButton; stop.Store(true) }()
//	_, err := runner.Run(ctx, skillgraph.RunAll(), skillgraph.WithStopFunc(stop.Load))
func WithStopFunc(stop func() bool) RunOption {
	return func(c *runConfig) {
		c.stop = stop
	}
}
