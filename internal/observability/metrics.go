// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RunMetrics bundles the run-lifecycle instruments. The controller
// records triggers and supersedes; runners record completions.
type RunMetrics struct {
	RunsTriggered  metric.Int64Counter
	RunsSuperseded metric.Int64Counter
	RunsCompleted  metric.Int64Counter
	RunDuration    metric.Float64Histogram
}

// NewRunMetrics creates the run-lifecycle instruments on the global
// meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter("beaconci")

	triggered, err := meter.Int64Counter("runs_triggered_total",
		metric.WithDescription("Number of pipeline runs triggered"))
	if err != nil {
		return nil, err
	}
	superseded, err := meter.Int64Counter("runs_superseded_total",
		metric.WithDescription("Number of runs cancelled by a newer run on the same branch"))
	if err != nil {
		return nil, err
	}
	completed, err := meter.Int64Counter("runs_completed_total",
		metric.WithDescription("Number of runs that reached a terminal status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("run_duration_seconds",
		metric.WithDescription("Wall time from enqueue to terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		RunsTriggered:  triggered,
		RunsSuperseded: superseded,
		RunsCompleted:  completed,
		RunDuration:    duration,
	}, nil
}

// RegisterQueueDepth exposes the queue depth as an observable gauge
// backed by the given callback.
func RegisterQueueDepth(depth func(ctx context.Context) (int64, error)) error {
	meter := otel.Meter("beaconci-controller")

	gauge, err := meter.Int64ObservableGauge("queue_depth",
		metric.WithDescription("Number of runs waiting in the queue"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := depth(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, n)
		return nil
	}, gauge)
	return err
}
