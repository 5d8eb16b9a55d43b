// Package logger provides structured logging for trustkit.
// The default backend is zap with JSON output; trace and span ids are taken from the
// OpenTelemetry span in the context, and values under sensitive keys are masked.
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/trustkit/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error message
	Error(ctx context.Context, message string, err error, fields ...Field)

	// WithFields creates a new logger with additional fields
	WithFields(fields ...Field) Logger

	// WithComponent creates a new logger for a specific component
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Any creates a field with any type
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ================================================================================
// Zap Implementation
// ================================================================================

type zapLogger struct {
	base *zap.Logger
}

// NewLogger creates a zap-backed Logger writing JSON to stderr.
// Unknown levels fall back to info.
func NewLogger(level constants.LogLevel) Logger {
	return NewLoggerWithFormat(level, "json")
}

// NewLoggerWithFormat is NewLogger with a selectable encoding, "json" or "console".
func NewLoggerWithFormat(level constants.LogLevel, format string) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(string(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl)
	return NewZapLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)))
}

// NewZapLogger adapts an existing zap logger. A nil logger yields a no-op logger.
func NewZapLogger(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &zapLogger{base: z}
}

// NewDefaultLogger creates a logger with default settings (stdout, Info level)
func NewDefaultLogger() Logger {
	return NewLogger(constants.LogLevelInfo)
}

func (l *zapLogger) Debug(ctx context.Context, message string, fields ...Field) {
	l.base.Debug(message, convertFields(ctx, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, message string, fields ...Field) {
	l.base.Info(message, convertFields(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, message string, fields ...Field) {
	l.base.Warn(message, convertFields(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, message string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, Err(err))
	}
	l.base.Error(message, convertFields(ctx, fields)...)
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{base: l.base.With(convertFields(context.Background(), fields)...)}
}

func (l *zapLogger) WithComponent(component string) Logger {
	return &zapLogger{base: l.base.With(zap.String("component", component))}
}

func convertFields(ctx context.Context, fields []Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+3)

	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			)
		}
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}

	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, sanitizeValue(f.Key, f.Value)))
	}
	return zapFields
}

// ================================================================================
// Utility Functions
// ================================================================================

// sensitiveKeys lists field keys whose values are masked
var sensitiveKeys = []string{
	"secret",
	"sign",
	"keystr",
	"password",
	"token",
	"private_key",
}

func sanitizeValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(keyLower, sensitiveKey) {
			if str, ok := value.(string); ok && len(str) > 0 {
				return maskString(str)
			}
			return "***REDACTED***"
		}
	}
	return value
}

// maskString partially masks a string value
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

// ================================================================================
// Performance Logging
// ================================================================================

// PerformanceLogger tracks operation performance
type PerformanceLogger struct {
	logger    Logger
	threshold time.Duration
}

// NewPerformanceLogger creates a performance logger that warns on operations slower
// than threshold. A non-positive threshold uses constants.SlowSupplierThreshold.
func NewPerformanceLogger(logger Logger, threshold time.Duration) *PerformanceLogger {
	if threshold <= 0 {
		threshold = constants.SlowSupplierThreshold
	}
	return &PerformanceLogger{
		logger:    logger.WithComponent("performance"),
		threshold: threshold,
	}
}

// LogOperationDuration logs the duration of an operation
func (p *PerformanceLogger) LogOperationDuration(ctx context.Context, operation string, duration time.Duration, fields ...Field) {
	perfFields := append([]Field{
		String("operation", operation),
		Duration("duration", duration),
		Int64("duration_ms", duration.Milliseconds()),
	}, fields...)

	if duration > p.threshold {
		p.logger.Warn(ctx, "Slow operation detected", perfFields...)
	} else {
		p.logger.Debug(ctx, "Operation completed", perfFields...)
	}
}

// StartOperation returns a function that logs the elapsed time when called
func (p *PerformanceLogger) StartOperation(ctx context.Context, operation string) func(...Field) {
	start := time.Now()
	return func(fields ...Field) {
		p.LogOperationDuration(ctx, operation, time.Since(start), fields...)
	}
}
