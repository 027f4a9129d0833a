package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records skillgraph metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID, skillID string, duration time.Duration, err error)

	// RecordNodeSkipped records a node the walk did not execute.
	RecordNodeSkipped(ctx context.Context, nodeID, reason string)

	// RecordRun records a run completion.
	RecordRun(ctx context.Context, mode string, success bool, duration time.Duration)

	// RecordSnapshotPublished records a newly published snapshot.
	RecordSnapshotPublished(ctx context.Context, nodeID, port string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	nodeSkips      metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	snapshots      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily builds the metrics on the global meter provider.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("skillgraph"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("skillgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("skillgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("skillgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}
	if m.nodeSkips, err = meter.Int64Counter("skillgraph.node.skips",
		metric.WithDescription("Number of nodes skipped by the walk"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("skillgraph.run.count",
		metric.WithDescription("Number of runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("skillgraph.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.snapshots, err = meter.Int64Counter("skillgraph.snapshot.published",
		metric.WithDescription("Number of snapshots published"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder on the global OTel meter
// provider. If initialization fails, returns a no-op recorder.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder on the given
// provider instead of the global one.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(mp.Meter("skillgraph"))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID, skillID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("skill_id", skillID),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordNodeSkipped records a skipped node.
func (m *otelMetrics) RecordNodeSkipped(ctx context.Context, nodeID, reason string) {
	m.nodeSkips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("reason", reason),
	))
}

// RecordRun records a run.
func (m *otelMetrics) RecordRun(ctx context.Context, mode string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordSnapshotPublished records a published snapshot.
func (m *otelMetrics) RecordSnapshotPublished(ctx context.Context, nodeID, port string) {
	m.snapshots.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("port", port),
	))
}
