package observability

import (
	"context"
	"log/slog"
)

// LogContext holds structured logging context carried alongside a context.Context.
type LogContext struct {
	JobCode  string
	Service  string
	Stage    string
	Platform string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithJobCode attaches a job code to the context.
func WithJobCode(ctx context.Context, code string) context.Context {
	lc := extractLogContext(ctx)
	lc.JobCode = code
	return context.WithValue(ctx, logContextKey, lc)
}

// WithService attaches a service name (updater/builder/notifier/admin) to the context.
func WithService(ctx context.Context, service string) context.Context {
	lc := extractLogContext(ctx)
	lc.Service = service
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage attaches the current build-pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// WithPlatform attaches the target platform name to the context.
func WithPlatform(ctx context.Context, platform string) context.Context {
	lc := extractLogContext(ctx)
	lc.Platform = platform
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.JobCode != "" {
		attrs = append(attrs, slog.String("job_code", lc.JobCode))
	}
	if lc.Service != "" {
		attrs = append(attrs, slog.String("service", lc.Service))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}
	if lc.Platform != "" {
		attrs = append(attrs, slog.String("platform", lc.Platform))
	}

	return attrs
}

// InfoContext logs an info message enriched with context-carried fields.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelInfo, msg, allAttrs...)
}

// WarnContext logs a warning message enriched with context-carried fields.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelWarn, msg, allAttrs...)
}

// ErrorContext logs an error message enriched with context-carried fields.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// DebugContext logs a debug message enriched with context-carried fields.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	allAttrs := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, slog.LevelDebug, msg, allAttrs...)
}

// LogBuilder accumulates attributes for a single structured log line.
type LogBuilder struct {
	ctx   context.Context
	attrs []slog.Attr
}

// NewLogBuilder starts a log builder seeded with the context's carried fields.
func NewLogBuilder(ctx context.Context) *LogBuilder {
	return &LogBuilder{
		ctx:   ctx,
		attrs: getLogAttrs(ctx),
	}
}

// With adds one attribute to the builder.
func (lb *LogBuilder) With(key string, value interface{}) *LogBuilder {
	switch v := value.(type) {
	case string:
		lb.attrs = append(lb.attrs, slog.String(key, v))
	case int:
		lb.attrs = append(lb.attrs, slog.Int(key, v))
	case int64:
		lb.attrs = append(lb.attrs, slog.Int64(key, v))
	case float64:
		lb.attrs = append(lb.attrs, slog.Float64(key, v))
	case bool:
		lb.attrs = append(lb.attrs, slog.Bool(key, v))
	default:
		lb.attrs = append(lb.attrs, slog.Any(key, v))
	}
	return lb
}

func (lb *LogBuilder) Info(msg string)  { slog.LogAttrs(lb.ctx, slog.LevelInfo, msg, lb.attrs...) }
func (lb *LogBuilder) Warn(msg string)  { slog.LogAttrs(lb.ctx, slog.LevelWarn, msg, lb.attrs...) }
func (lb *LogBuilder) Error(msg string) { slog.LogAttrs(lb.ctx, slog.LevelError, msg, lb.attrs...) }
func (lb *LogBuilder) Debug(msg string) { slog.LogAttrs(lb.ctx, slog.LevelDebug, msg, lb.attrs...) }

// GetContext returns the structured log context carried by ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
