package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*ProductionLogger, *observer.ObservedLogs) {
	zc, logs := observer.New(level)
	return NewLoggerFromZap(zap.New(zc), "docrouter-test"), logs
}

func TestProductionLogger_Levels(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug("hidden", nil)
	logger.Info("classified", map[string]interface{}{"format": "json"})
	logger.Warn("slow request", map[string]interface{}{"duration_ms": 1200})
	logger.Error("store failed", map[string]interface{}{"error": errors.New("connection refused")})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "classified", entries[0].Message)
	assert.Equal(t, "json", entries[0].ContextMap()["format"])
	assert.Equal(t, "docrouter-test", entries[0].ContextMap()["service"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "connection refused", entries[2].ContextMap()["error"])
}

func TestProductionLogger_TraceCorrelation(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.InfoWithContext(ctx, "with span", nil)
	logger.InfoWithContext(context.Background(), "without span", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[0].ContextMap()["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entries[0].ContextMap()["span_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestNewProductionLogger_Validation(t *testing.T) {
	_, err := NewProductionLogger(LoggingConfig{Level: "loud", Format: "json"}, DevelopmentConfig{}, "svc")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewProductionLogger(LoggingConfig{Level: "info", Format: "xml"}, DevelopmentConfig{}, "svc")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	logger, err := NewProductionLogger(LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, DevelopmentConfig{Enabled: true}, "svc")
	require.NoError(t, err)
	assert.NotNil(t, logger.Zap())
}
