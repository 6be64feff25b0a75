package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds custom metrics for query graph execution.
type EngineMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	graphNodes      metric.Int64Histogram
	nodeDuration    metric.Float64Histogram
	nodeCounter     metric.Int64Counter
	recordsFetched  metric.Int64Histogram
	fanOutClones    metric.Int64Counter
	violations      metric.Int64Counter
	authFailures    metric.Int64Counter
}

// InitEngineMetrics initializes engine-specific metrics
func InitEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("query-engine")

	requestDuration, err := meter.Float64Histogram(
		"engine.request.duration",
		metric.WithDescription("Duration of query requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"engine.requests.total",
		metric.WithDescription("Total number of query requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"engine.errors.total",
		metric.WithDescription("Total number of failed query requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"engine.requests.active",
		metric.WithDescription("Number of active query requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	graphNodes, err := meter.Int64Histogram(
		"engine.graph.nodes",
		metric.WithDescription("Number of nodes in an executed query graph"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph nodes histogram: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram(
		"engine.node.duration",
		metric.WithDescription("Duration of query graph node execution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node duration histogram: %w", err)
	}

	nodeCounter, err := meter.Int64Counter(
		"engine.nodes.total",
		metric.WithDescription("Total number of executed query graph nodes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node counter: %w", err)
	}

	recordsFetched, err := meter.Int64Histogram(
		"engine.nested.records_fetched",
		metric.WithDescription("Number of records fetched by a nested relation read"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records fetched histogram: %w", err)
	}

	fanOutClones, err := meter.Int64Counter(
		"engine.nested.fan_out_clones",
		metric.WithDescription("Number of child records cloned to serve several parents"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fan-out counter: %w", err)
	}

	violations, err := meter.Int64Counter(
		"engine.relation_violations.total",
		metric.WithDescription("Number of deletions rejected by relation checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation violation counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		"engine.auth.failures.total",
		metric.WithDescription("Number of requests rejected by authentication"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failure counter: %w", err)
	}

	return &EngineMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		graphNodes:      graphNodes,
		nodeDuration:    nodeDuration,
		nodeCounter:     nodeCounter,
		recordsFetched:  recordsFetched,
		fanOutClones:    fanOutClones,
		violations:      violations,
		authFailures:    authFailures,
	}, nil
}

// RecordRequest records a query request with its duration and outcome
func (m *EngineMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, action string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.Bool("has_errors", hasErrors),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
		))
	}
}

// RecordGraphSize records the number of nodes of an executed graph
func (m *EngineMetrics) RecordGraphSize(ctx context.Context, nodes int) {
	if m == nil {
		return
	}
	m.graphNodes.Record(ctx, int64(nodes))
}

// RecordNode records one node execution
func (m *EngineMetrics) RecordNode(ctx context.Context, duration time.Duration, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("node_kind", kind),
		attribute.String("outcome", outcome),
	)
	m.nodeDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.nodeCounter.Add(ctx, 1, attrs)
}

func (m *EngineMetrics) RecordRecordsFetched(ctx context.Context, count int64, relationType string) {
	if m == nil {
		return
	}
	m.recordsFetched.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *EngineMetrics) RecordFanOutClones(ctx context.Context, count int64, relationType string) {
	if m == nil || count <= 0 {
		return
	}
	m.fanOutClones.Add(ctx, count, metric.WithAttributes(
		attribute.String("relation_type", relationType),
	))
}

func (m *EngineMetrics) RecordRelationViolation(ctx context.Context, relation string) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation", relation),
	))
}

// RecordAuthFailure counts a request rejected by an auth middleware.
func (m *EngineMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *EngineMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *EngineMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the EngineMetrics instance
func InitMetrics(logger *slog.Logger) (*EngineMetrics, error) {
	metrics, err := InitEngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine metrics: %w", err)
	}

	logger.Info("custom engine metrics initialized")
	return metrics, nil
}

type engineMetricsContextKey struct{}

// ContextWithEngineMetrics stores engine metrics in the provided context.
func ContextWithEngineMetrics(ctx context.Context, metrics *EngineMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, engineMetricsContextKey{}, metrics)
}

// EngineMetricsFromContext retrieves engine metrics from the context.
func EngineMetricsFromContext(ctx context.Context) *EngineMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(engineMetricsContextKey{}).(*EngineMetrics)
	return metrics
}
