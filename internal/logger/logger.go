// Package logger wraps log/slog behind a small struct so call sites across
// the engine log with a consistent key/value shape and can be swapped for
// a no-op logger in tests.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a thin wrapper over *slog.Logger.
type Logger struct {
	*slog.Logger
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	level  slog.Level
	format string
	out    *os.File
}

// WithLevel sets the minimum level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = parseLevel(level)
	}
}

// WithFormat selects "json" or "text" output.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a Logger writing to stdout, json by default.
func New(opts ...Option) *Logger {
	o := &options{level: slog.LevelInfo, format: "json", out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}

	var handler slog.Handler
	if o.format == "text" {
		handler = slog.NewTextHandler(o.out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(o.out, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a Logger with the given key/value pairs attached to every
// subsequent record — used to carry tenantId/executionId through a call
// chain without threading them as explicit parameters.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext extracts correlation fields (tenant/execution id) previously
// stored on ctx via ContextWithTenant/ContextWithExecution and attaches them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	args := make([]any, 0, 4)
	if tenant, ok := ctx.Value(tenantCtxKey{}).(string); ok && tenant != "" {
		args = append(args, "tenant_id", tenant)
	}
	if execID, ok := ctx.Value(executionCtxKey{}).(string); ok && execID != "" {
		args = append(args, "execution_id", execID)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

type tenantCtxKey struct{}
type executionCtxKey struct{}

// ContextWithTenant stores a tenant id on ctx for later log correlation.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// ContextWithExecution stores an execution id on ctx for later log correlation.
func ContextWithExecution(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionCtxKey{}, executionID)
}

// TenantFromContext reads back a tenant id stored by ContextWithTenant, for
// callers outside this package that need the same correlation value (e.g.
// metric labels).
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}

// ExecutionFromContext reads back an execution id stored by
// ContextWithExecution.
func ExecutionFromContext(ctx context.Context) string {
	execID, _ := ctx.Value(executionCtxKey{}).(string)
	return execID
}

// Nop returns a Logger that discards all output, for use in unit tests
// that don't want to assert on log lines.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
