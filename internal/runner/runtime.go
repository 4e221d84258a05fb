// Package runner contains the runner-specific logic for pipeline
// execution: the stage engine, command runtimes and the pull-loop agent.
package runner

import (
	"context"
	"io"
)

// Runtime defines the interface for executing stage commands.
// Implementations include raw shell processes and Docker containers.
type Runtime interface {
	// Start begins execution of a command and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting a command.
type StartOptions struct {
	// Command is a single shell command line.
	Command string

	// Dir is the working directory (the run workspace).
	Dir string

	// Env is merged over the parent environment.
	Env map[string]string

	// Image selects the container runtime; empty means shell.
	Image string
}

// ExitResult is the outcome of a completed command.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running command.
type Handle interface {
	// Wait blocks until the command completes and returns the exit code.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop forcefully terminates the command.
	Stop(ctx context.Context) error

	// StreamLogs returns a reader for the combined stdout/stderr.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)
}
