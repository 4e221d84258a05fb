// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request/correlation IDs.
type requestIDKey struct{}

// runIDKey is the context key for the pipeline run being handled.
type runIDKey struct{}

// New creates a new structured JSON logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithRunID returns a new context carrying the pipeline run ID.
func WithRunID(ctx context.Context, runID uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run ID from the context.
func RunIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if v := ctx.Value(runIDKey{}); v != nil {
		return v.(uuid.UUID), true
	}
	return uuid.Nil, false
}

// FromContext returns a logger with context fields (request ID, run ID)
// attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		l = l.With("run_id", runID.String())
	}
	return l
}
