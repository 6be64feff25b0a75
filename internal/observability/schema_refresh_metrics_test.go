package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSchemaRefreshMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	m, err := InitSchemaRefreshMetrics(slog.Default())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRefresh(ctx, 5*time.Millisecond, true, "startup")
	m.RecordRefresh(ctx, 5*time.Millisecond, false, "poll")
	m.RecordModelCount(ctx, 3)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, metrics["engine.schema_refresh.total"]))
	assert.Equal(t, int64(1), sumValue(t, metrics["engine.schema_refresh.errors.total"]))

	gauge, ok := metrics["engine.schema.models"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)

	last, ok := metrics["engine.schema_refresh.last_success_unix"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, last.DataPoints, 1)
	assert.Positive(t, last.DataPoints[0].Value)
}

func TestSchemaRefreshMetrics_NilSafe(t *testing.T) {
	var m *SchemaRefreshMetrics
	assert.NotPanics(t, func() {
		m.RecordRefresh(context.Background(), time.Second, true, "manual")
		m.RecordModelCount(context.Background(), 1)
	})
}
