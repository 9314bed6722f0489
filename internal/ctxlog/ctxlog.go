// Package ctxlog carries a slog.Logger through context.Context so that every
// component logs with the attributes its caller attached.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

// loggerKey is the key for the slog.Logger in a context.Context.
var loggerKey = key{}

// WithLogger returns a new context with the provided logger embedded.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the slog.Logger from a context. Contexts that never
// passed through WithLogger (tests, library callers) get the process default
// logger rather than a panic.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithOperation returns a context whose logger carries the standard
// per-operation attributes used by the scheduler and the runners.
func WithOperation(ctx context.Context, phase, project string) context.Context {
	logger := FromContext(ctx).With("phase", phase)
	if project != "" {
		logger = logger.With("project", project)
	}
	return WithLogger(ctx, logger)
}
