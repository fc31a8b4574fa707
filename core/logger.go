package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProductionLogger implements Logger on top of zap.
//
// Output format follows LoggingConfig.Format: "json" for log aggregation in
// containers, "text" for a human-readable console encoder during development.
// Every line carries the service name; context-aware variants add trace_id and
// span_id when the context holds a sampled OpenTelemetry span.
type ProductionLogger struct {
	zl          *zap.Logger
	serviceName string
}

// NewProductionLogger builds a logger from the logging and development configuration.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) (*ProductionLogger, error) {
	var zcfg zap.Config
	if dev.Enabled {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if logging.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(logging.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", logging.Level, ErrInvalidConfiguration)
		}
	}
	if dev.DebugLogging {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	switch logging.Format {
	case "json", "":
		zcfg.Encoding = "json"
	case "text", "console":
		zcfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("invalid log format %q: %w", logging.Format, ErrInvalidConfiguration)
	}

	output := logging.Output
	if output == "" {
		output = "stdout"
	}
	zcfg.OutputPaths = []string{output}
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.MessageKey = "message"
	zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	zl, err := zcfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return NewLoggerFromZap(zl, serviceName), nil
}

// NewLoggerFromZap wraps an existing zap logger. Used by the CLI and by tests
// that observe log output.
func NewLoggerFromZap(zl *zap.Logger, serviceName string) *ProductionLogger {
	if serviceName != "" {
		zl = zl.With(zap.String("service", serviceName))
	}
	return &ProductionLogger{zl: zl, serviceName: serviceName}
}

// Zap exposes the underlying zap logger
func (l *ProductionLogger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered log entries
func (l *ProductionLogger) Sync() error {
	return l.zl.Sync()
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(context.Background(), zapcore.InfoLevel, msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(context.Background(), zapcore.ErrorLevel, msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(context.Background(), zapcore.WarnLevel, msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(context.Background(), zapcore.DebugLevel, msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *ProductionLogger) log(ctx context.Context, level zapcore.Level, msg string, fields map[string]interface{}) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(toZapFields(ctx, fields)...)
}

// toZapFields converts the field bag in key order so output is stable.
func toZapFields(ctx context.Context, fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys)+2)
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			zf = append(zf, zap.String(k, err.Error()))
			continue
		}
		zf = append(zf, zap.Any(k, fields[k]))
	}

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zf = append(zf,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return zf
}
