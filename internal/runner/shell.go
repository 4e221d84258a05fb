package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ShellRuntime executes commands as raw OS processes via sh -c.
// This is the default: build agents are bare hosts selected by
// platform label, and the build tool expects a full host toolchain.
type ShellRuntime struct {
	// Shell overrides the interpreter, default "sh".
	Shell string
}

// NewShellRuntime creates a new process-based runtime.
func NewShellRuntime() *ShellRuntime {
	return &ShellRuntime{Shell: "sh"}
}

// Start implements Runtime.Start using os/exec. The command is killed
// when the context is cancelled or times out.
func (s *ShellRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	shell := s.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", opts.Command)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("failed to start command %q: %w", opts.Command, err)
	}

	h := &shellHandle{cmd: cmd, out: pr, doneCh: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		pw.Close()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.doneCh)
	}()

	return h, nil
}

type shellHandle struct {
	cmd    *exec.Cmd
	out    *io.PipeReader
	doneCh chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (h *shellHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.doneCh:
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}

	h.mu.Lock()
	err := h.waitErr
	h.mu.Unlock()

	if err == nil {
		return ExitResult{ExitCode: 0}, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return ExitResult{ExitCode: exitErr.ExitCode(), Error: err}, nil
	}
	return ExitResult{ExitCode: -1, Error: err}, err
}

func (h *shellHandle) Stop(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *shellHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return h.out, nil
}

func mergeEnv(base []string, extra map[string]string) []string {
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
