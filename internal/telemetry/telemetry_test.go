package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marmos91/tabletd/internal/logger"
)

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	// No-op spans carry no IDs.
	spanCtx, span := StartSpan(ctx, "noop")
	defer span.End()
	assert.Empty(t, TraceID(spanCtx))
	assert.Equal(t, spanCtx, WithLogContext(spanCtx))
}

func TestRecordedSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	UseTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { _, _ = Init(context.Background(), Config{}) })

	ctx, span := StartTabletSpan(context.Background(), SpanDeleteTablet, "t-1", TargetState("DELETED"))
	AddEvent(ctx, "checkpoint", Checkpoint("blocks_deleted"))
	RecordError(ctx, errors.New("disk gone"))
	RecordError(ctx, nil)

	logCtx := WithLogContext(ctx)
	lc := logger.FromContext(logCtx)
	require.NotNil(t, lc)
	assert.Equal(t, TraceID(ctx), lc.TraceID)
	assert.Equal(t, SpanID(ctx), lc.SpanID)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanDeleteTablet, ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events())
	assert.Equal(t, "checkpoint", ended[0].Events()[0].Name)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"cpu", "heat"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heat")
	assert.Contains(t, ProfileTypeNames(), "goroutines")
}
