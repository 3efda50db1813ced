package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured JSON logger that stamps every entry with service, hostname,
// action and the correlation id carried by the context.
type Logger struct {
	zl *zap.Logger
}

// NewLogger creates a new structured logger writing JSON to stdout at the given level.
func NewLogger(service, level string) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "level"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		parseLevel(level),
	)

	return New(zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	))
}

// New wraps an existing zap logger (tests use zap.NewNop or zaptest/observer).
func New(zl *zap.Logger) *Logger {
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(zap.NewNop())
}

// Sync flushes buffered entries.
func (logger *Logger) Sync() {
	_ = logger.zl.Sync()
}

// Zap exposes the underlying logger for libraries that take one.
func (logger *Logger) Zap() *zap.Logger {
	return logger.zl
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

// WithCorrelationID returns a context carrying a correlation id (HTTP request or mq delivery scope).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFrom returns the correlation id saved in the context, or "".
func CorrelationIDFrom(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (logger *Logger) fields(ctx context.Context, action string, details map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.String("action", action))
	if id := CorrelationIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	return fields
}

// -- Logger helper functions --

func (logger *Logger) Info(ctx context.Context, action, msg string, details map[string]any) {
	logger.zl.Info(msg, logger.fields(ctx, action, details)...)
}

func (logger *Logger) Debug(ctx context.Context, action, msg string, details map[string]any) {
	logger.zl.Debug(msg, logger.fields(ctx, action, details)...)
}

func (logger *Logger) Warn(ctx context.Context, action, msg string, details map[string]any) {
	logger.zl.Warn(msg, logger.fields(ctx, action, details)...)
}

func (logger *Logger) Error(ctx context.Context, action, msg string, err error) {
	fields := logger.fields(ctx, action, nil)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.zl.Error(msg, fields...)
}
