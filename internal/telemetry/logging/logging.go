// Package logging provides a thin structured-logging wrapper around log/slog
// that threads collection correlation fields (tier, cycle id, collector)
// through context so every log line from a cycle can be joined back to the
// tick that produced it, without ever logging the upstream API key.
package logging

import (
	"context"
	"log/slog"
)

type correlationKey struct{}

// Correlation carries the fields every log line emitted during a cycle should
// include. It is attached to a context once per cycle and read back out by
// Logger methods.
type Correlation struct {
	Tier      string
	CycleID   string
	Collector string
}

// WithCorrelation returns a context carrying c, replacing any previous value.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// WithCollector returns a copy of ctx's correlation (if any) with Collector
// overridden; used when a coordinator dispatches to named sub-collectors.
func WithCollector(ctx context.Context, collector string) context.Context {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	c.Collector = collector
	return context.WithValue(ctx, correlationKey{}, c)
}

// CollectorFrom returns the Collector field stashed on ctx by WithCollector,
// or "" if ctx carries no correlation — the task-local the API façade reads
// to attribute api_calls_total{collector, endpoint} back to its caller.
func CollectorFrom(ctx context.Context) string {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c.Collector
}

// Logger is a minimal interface wrapping slog with automatic correlation
// field injection.
type Logger interface {
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	WarnCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
}

type correlatedLogger struct{ base *slog.Logger }

// New returns a correlated Logger wrapper around base (or slog.Default if nil).
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func (l *correlatedLogger) attrs(ctx context.Context, attrs []any) []any {
	c, ok := ctx.Value(correlationKey{}).(Correlation)
	if !ok {
		return attrs
	}
	out := make([]any, 0, len(attrs)+6)
	if c.Tier != "" {
		out = append(out, slog.String("tier", c.Tier))
	}
	if c.CycleID != "" {
		out = append(out, slog.String("cycle_id", c.CycleID))
	}
	if c.Collector != "" {
		out = append(out, slog.String("collector", c.Collector))
	}
	return append(out, attrs...)
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, l.attrs(ctx, attrs)...)
}

func (l *correlatedLogger) WarnCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.WarnContext(ctx, msg, l.attrs(ctx, attrs)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, l.attrs(ctx, attrs)...)
}
