package logger

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/trustkit/pkg/constants"
)

func observed(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapLogger(zap.New(core)), logs
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	ctx := context.Background()

	log.Debug(ctx, "hidden")
	log.Info(ctx, "visible", String("key", "k1"), Int("n", 2))
	log.WithComponent("cache").Warn(ctx, "slow")
	log.Error(ctx, "failed", stderrors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "visible", entries[0].Message)
	assert.Equal(t, "k1", entries[0].ContextMap()["key"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["n"])

	assert.Equal(t, "cache", entries[1].ContextMap()["component"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestZapLogger_MasksSensitiveFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.Info(context.Background(), "configured",
		String("sign", "0123456789abcdef"),
		String("keyStr", "short"),
		Any("password", 42),
		String("user", "ann"),
	)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "0123***cdef", fields["sign"])
	assert.Equal(t, "***", fields["keyStr"])
	assert.Equal(t, "***REDACTED***", fields["password"])
	assert.Equal(t, "ann", fields["user"])
}

func TestZapLogger_ContextIDs(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, "req-1")

	log.Info(ctx, "traced")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestPerformanceLogger(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)
	perf := NewPerformanceLogger(log, 10*time.Millisecond)
	ctx := context.Background()

	perf.LogOperationDuration(ctx, "fast", time.Millisecond)
	perf.LogOperationDuration(ctx, "slow", time.Second, String("key", "k"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "Slow operation detected", entries[1].Message)
	assert.Equal(t, "slow", entries[1].ContextMap()["operation"])
	assert.Equal(t, "performance", entries[1].ContextMap()["component"])

	done := perf.StartOperation(ctx, "timed")
	done()
	assert.Equal(t, "timed", logs.All()[2].ContextMap()["operation"])
}

func TestNoopLogger(t *testing.T) {
	log := NewNoopLogger()
	assert.NotPanics(t, func() {
		log.WithComponent("x").WithFields(String("a", "b")).Error(context.Background(), "m", nil)
	})
}

func TestNewLoggerWithFormat(t *testing.T) {
	assert.NotNil(t, NewLoggerWithFormat(constants.LogLevelDebug, "console"))
	assert.NotNil(t, NewLogger("bogus"))
}
