package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaRefreshMetrics tracks data model rebuilds.
type SchemaRefreshMetrics struct {
	refreshCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	modelCount      metric.Int64Gauge
	lastSuccessUnix atomic.Int64
}

// InitSchemaRefreshMetrics initializes schema refresh metrics.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	meter := otel.Meter("query-engine")

	refreshCounter, err := meter.Int64Counter(
		"engine.schema_refresh.total",
		metric.WithDescription("Total number of data model refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"engine.schema_refresh.errors.total",
		metric.WithDescription("Total number of failed data model refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"engine.schema_refresh.duration",
		metric.WithDescription("Duration of data model refresh attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh duration histogram: %w", err)
	}

	modelCount, err := meter.Int64Gauge(
		"engine.schema.models",
		metric.WithDescription("Number of models in the active data model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model count gauge: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"engine.schema_refresh.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful data model refresh"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh last success gauge: %w", err)
	}

	metrics := &SchemaRefreshMetrics{
		refreshCounter: refreshCounter,
		errorCounter:   errorCounter,
		durationHist:   durationHist,
		modelCount:     modelCount,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema refresh gauge callback: %w", err)
	}

	logger.Info("schema refresh metrics initialized")
	return metrics, nil
}

// RecordRefresh records a refresh attempt. trigger is startup, poll,
// poll_no_change or manual.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	)
	m.refreshCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// RecordModelCount records the size of a freshly built data model.
func (m *SchemaRefreshMetrics) RecordModelCount(ctx context.Context, models int) {
	if m == nil {
		return
	}
	m.modelCount.Record(ctx, int64(models))
}
