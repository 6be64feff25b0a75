package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider_ServesEngineInstruments(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "query-engine", ServiceVersion: "test", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())
	defer func() { assert.NoError(t, mp.Shutdown(context.Background(), discardLogger())) }()

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, metrics.requestDuration)
	assert.NotNil(t, metrics.graphNodes)
	assert.NotNil(t, metrics.fanOutClones)
}

func sampleDecision(s sdktrace.Sampler, parent context.Context, id byte) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       trace.TraceID{id},
		Name:          "interpreter.execute",
	}).Decision
}

func remoteParent(sampled bool) context.Context {
	cfg := trace.SpanContextConfig{TraceID: trace.TraceID{9}, SpanID: trace.SpanID{1}, Remote: true}
	if sampled {
		cfg.TraceFlags = trace.FlagsSampled
	}
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(cfg))
}

func TestTraceSamplerForRatio(t *testing.T) {
	bg := context.Background()

	assert.Equal(t, sdktrace.Drop, sampleDecision(traceSamplerForRatio(0), bg, 1))
	assert.Equal(t, sdktrace.Drop, sampleDecision(traceSamplerForRatio(-1), remoteParent(true), 2))
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(traceSamplerForRatio(1), bg, 3))

	half := traceSamplerForRatio(0.5)
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(half, remoteParent(true), 4))
	assert.Equal(t, sdktrace.Drop, sampleDecision(half, remoteParent(false), 5))
}

func TestSetupPropagation(t *testing.T) {
	SetupPropagation()
	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}
