package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithRequestID_And_RequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	requestID := "req-12345"

	// Initially empty
	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("RequestIDFromContext() on empty ctx = %v, want empty", got)
	}

	// After setting
	ctx = WithRequestID(ctx, requestID)
	if got := RequestIDFromContext(ctx); got != requestID {
		t.Errorf("RequestIDFromContext() = %v, want %v", got, requestID)
	}
}

func TestWithRunID_And_RunIDFromContext(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	if _, ok := RunIDFromContext(ctx); ok {
		t.Error("RunIDFromContext() on empty ctx reported a run ID")
	}

	ctx = WithRunID(ctx, runID)
	got, ok := RunIDFromContext(ctx)
	if !ok || got != runID {
		t.Errorf("RunIDFromContext() = %v, %v, want %v, true", got, ok, runID)
	}
}

func TestFromContext_AttachesFields(t *testing.T) {
	base := New()
	ctx := context.Background()

	// Without context fields - should return base logger (not nil)
	logger := FromContext(ctx, base)
	if logger == nil {
		t.Error("FromContext() returned nil")
	}

	ctx = WithRequestID(ctx, "req-67890")
	ctx = WithRunID(ctx, uuid.New())
	loggerWithIDs := FromContext(ctx, base)
	if loggerWithIDs == nil {
		t.Error("FromContext() with IDs returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Error("New() returned nil")
	}
}
