package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"beaconci/internal/artifact"
	"beaconci/internal/pipeline"
	"beaconci/internal/store"
)

// RunSpec is the full description of a run as carried in the queue
// payload: the pipeline definition, parameters and trace context.
type RunSpec struct {
	RunID      uuid.UUID              `json:"run_id"`
	Pipeline   pipeline.Pipeline      `json:"pipeline"`
	Branch     string                 `json:"branch"`
	JobPath    string                 `json:"job_path"`
	Params     pipeline.Params        `json:"params"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
	Trace      propagation.MapCarrier `json:"trace,omitempty"`
}

// StageStatus is the terminal state of a single stage.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
	StageTimeout StageStatus = "timeout"
)

// StageResult records how one stage ended.
type StageResult struct {
	Name     string
	Status   StageStatus
	ExitCode int
	Duration time.Duration
}

// Failed reports whether the stage ended in any non-success state.
func (r StageResult) Failed() bool { return r.Status != StageSuccess }

// RunOutcome is the aggregate result of a run.
type RunOutcome struct {
	Status   store.RunStatus
	ExitCode *int
	Error    string
	Stages   []StageResult
}

// LogSink receives captured output lines.
type LogSink interface {
	Line(line string)
}

// ArtifactPublisher receives finished artifact archives.
type ArtifactPublisher interface {
	Publish(ctx context.Context, runID uuid.UUID, name, path string) error
}

// Engine executes a pipeline's stage graph inside a workspace.
type Engine struct {
	shell      Runtime
	containers Runtime // nil unless a container backend is configured
	log        *slog.Logger
	nproc      int
}

// NewEngine creates an engine. containers may be nil; stages that
// declare an image then fail instead of silently running on the host.
func NewEngine(shell Runtime, containers Runtime, log *slog.Logger) *Engine {
	if shell == nil {
		shell = NewShellRuntime()
	}
	return &Engine{
		shell:      shell,
		containers: containers,
		log:        log,
		nproc:      runtime.NumCPU(),
	}
}

// Execute runs the pipeline in the given workspace. The workspace is
// created if needed and recursively removed on every terminal
// outcome, success or not. The context carries run cancellation;
// the global timeout is derived from the spec's enqueue time, so
// queue wait counts against it.
func (e *Engine) Execute(ctx context.Context, spec RunSpec, workspace string, sink LogSink, pub ArtifactPublisher) RunOutcome {
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			e.log.Error("failed to wipe workspace", "workspace", workspace, "error", err)
		}
	}()

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		msg := fmt.Sprintf("failed to create workspace: %v", err)
		return RunOutcome{Status: store.RunStatusFailure, Error: msg}
	}

	opts := spec.Pipeline.Options
	deadline := spec.EnqueuedAt.Add(opts.GlobalTimeout.Std())
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	env := pipeline.BuildEnv(spec.Params, e.nproc)
	env["BRANCH"] = spec.Branch

	out := decorate(sink, opts)
	outcome := RunOutcome{Status: store.RunStatusSuccess}

	for i := range spec.Pipeline.Stages {
		stage := &spec.Pipeline.Stages[i]

		var results []StageResult
		if len(stage.Parallel) > 0 {
			results = e.runGroup(runCtx, stage, spec, env, workspace, out, pub)
		} else {
			results = []StageResult{e.runStage(runCtx, stage, env, workspace, out)}
		}
		outcome.Stages = append(outcome.Stages, results...)

		// Post-actions run regardless of stage outcome, including
		// timeout and run cancellation. A fresh context keeps them
		// alive after the run context died.
		e.runPost(stage, spec, workspace, out, pub)

		groupFailed := false
		for _, r := range results {
			if r.Failed() {
				out.Line(fmt.Sprintf("stage %s: %s (exit code %d)", r.Name, r.Status, r.ExitCode))
				if !stage.AllowFailure {
					groupFailed = true
					code := r.ExitCode
					outcome.ExitCode = &code
					outcome.Error = fmt.Sprintf("stage %s %s", r.Name, r.Status)
				}
			}
		}
		if groupFailed {
			outcome.Status = store.RunStatusFailure
			break
		}
	}

	switch {
	case errors.Is(runCtx.Err(), context.Canceled):
		outcome.Status = store.RunStatusCancelled
		outcome.Error = "run cancelled"
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome.Status = store.RunStatusFailure
		outcome.Error = fmt.Sprintf("global timeout of %s exceeded", opts.GlobalTimeout.Std())
	}

	return outcome
}

// runGroup runs the stage's parallel children concurrently. A failing
// member does not abort its in-flight siblings; the group fails once
// all members have finished.
func (e *Engine) runGroup(ctx context.Context, group *pipeline.Stage, spec RunSpec, env map[string]string, workspace string, sink LogSink, pub ArtifactPublisher) []StageResult {
	results := make([]StageResult, len(group.Parallel))

	g := new(errgroup.Group)
	for i := range group.Parallel {
		child := &group.Parallel[i]
		g.Go(func() error {
			childSink := &prefixSink{prefix: "[" + child.Name + "] ", next: sink}
			results[i] = e.runStage(ctx, child, env, workspace, childSink)

			// Child post-actions run as soon as the child finishes.
			e.runPost(child, spec, workspace, childSink, pub)
			return nil
		})
	}
	g.Wait()

	return results
}

// runStage executes one leaf stage under its own timeout.
func (e *Engine) runStage(ctx context.Context, stage *pipeline.Stage, env map[string]string, workspace string, sink LogSink) StageResult {
	start := time.Now()
	result := StageResult{Name: stage.Name, Status: StageSuccess}

	stageCtx, cancel := context.WithTimeout(ctx, stage.Timeout.Std())
	defer cancel()

	sink.Line(fmt.Sprintf("=== stage %s ===", stage.Name))

	for _, command := range stage.Commands {
		sink.Line("+ " + command)

		exitCode, err := e.runCommand(stageCtx, stage, command, env, workspace, sink)
		if err != nil || exitCode != 0 {
			result.ExitCode = exitCode
			if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				result.Status = StageTimeout
				sink.Line(fmt.Sprintf("stage %s timed out after %s", stage.Name, stage.Timeout.Std()))
			} else {
				result.Status = StageFailure
				if err != nil {
					sink.Line(fmt.Sprintf("command failed: %v", err))
				}
			}
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (e *Engine) runCommand(ctx context.Context, stage *pipeline.Stage, command string, env map[string]string, workspace string, sink LogSink) (int, error) {
	rt := e.shell
	if stage.Image != "" {
		if e.containers == nil {
			return -1, fmt.Errorf("stage %s requires image %s but no container runtime is configured", stage.Name, stage.Image)
		}
		rt = e.containers
	}

	handle, err := rt.Start(ctx, StartOptions{
		Command: command,
		Dir:     workspace,
		Env:     env,
		Image:   stage.Image,
	})
	if err != nil {
		return -1, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.streamOutput(ctx, handle, sink)
	}()

	result, err := handle.Wait(ctx)
	if err != nil {
		// Context death: make sure the process is gone before the
		// post-actions touch the workspace.
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		handle.Stop(stopCtx)
		stopCancel()
	}
	wg.Wait()

	return result.ExitCode, nil
}

func (e *Engine) streamOutput(ctx context.Context, handle Handle, sink LogSink) {
	rc, err := handle.StreamLogs(ctx)
	if err != nil {
		e.log.Error("failed to get log stream", "error", err)
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.Line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// An oversized line must not leave the pipe undrained: the
		// command would block on a full pipe until its timeout.
		e.log.Error("log stream aborted, draining", "error", err)
		io.Copy(io.Discard, rc)
	}
}

// runPost executes the stage's post-action: archive matching files
// and hand them to the publisher. Runs even when the stage failed or
// the run context is already dead.
func (e *Engine) runPost(stage *pipeline.Stage, spec RunSpec, workspace string, sink LogSink, pub ArtifactPublisher) {
	if stage.Post == nil || stage.Post.Archive == nil || pub == nil {
		return
	}
	archiveSpec := *stage.Post.Archive

	tmpDir, err := os.MkdirTemp("", "beaconci-artifact-")
	if err != nil {
		sink.Line(fmt.Sprintf("post %s: %v", stage.Name, err))
		return
	}
	defer os.RemoveAll(tmpDir)

	dest := filepath.Join(tmpDir, archiveSpec.Name)
	size, err := artifact.WriteArchive(workspace, archiveSpec, dest)
	if errors.Is(err, artifact.ErrNoFiles) {
		sink.Line(fmt.Sprintf("post %s: nothing matched %v", stage.Name, archiveSpec.Globs))
		return
	}
	if err != nil {
		sink.Line(fmt.Sprintf("post %s: archive failed: %v", stage.Name, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := pub.Publish(ctx, spec.RunID, archiveSpec.Name, dest); err != nil {
		sink.Line(fmt.Sprintf("post %s: publish failed: %v", stage.Name, err))
		return
	}
	sink.Line(fmt.Sprintf("post %s: archived %s (%d bytes)", stage.Name, archiveSpec.Name, size))
}

// prefixSink labels lines from a parallel group member.
type prefixSink struct {
	prefix string
	next   LogSink
}

func (p *prefixSink) Line(line string) {
	p.next.Line(p.prefix + line)
}

var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// decoratedSink applies the pipeline's output options: timestamps and
// ANSI color stripping.
type decoratedSink struct {
	timestamps bool
	stripANSI  bool
	next       LogSink
}

func decorate(sink LogSink, opts pipeline.Options) LogSink {
	if opts.Timestamps || !opts.ANSIColor {
		return &decoratedSink{
			timestamps: opts.Timestamps,
			stripANSI:  !opts.ANSIColor,
			next:       sink,
		}
	}
	return sink
}

func (d *decoratedSink) Line(line string) {
	if d.stripANSI {
		line = ansiEscapes.ReplaceAllString(line, "")
	}
	if d.timestamps {
		line = time.Now().UTC().Format("2006-01-02 15:04:05") + " | " + line
	}
	d.next.Line(line)
}
