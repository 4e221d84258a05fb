package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"beaconci/internal/observability"
	"beaconci/internal/store"
	"beaconci/pkg/api"
)

// AgentConfig holds configuration for the runner agent.
type AgentConfig struct {
	Node              string
	Labels            []string
	Concurrency       int
	PollInterval      time.Duration
	ControllerURL     string
	MaxBackoff        time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval time.Duration // Interval between heartbeat calls (default: 30s)
	WorkRoot          string        // Root directory for run workspaces
	AuthToken         string        // Bearer token for controller requests (optional)

	// Metrics is optional; nil disables run counters.
	Metrics *observability.RunMetrics
}

// RunnerStore is the database surface the agent needs.
type RunnerStore interface {
	store.Queue
	CompleteRun(ctx context.Context, id uuid.UUID, status store.RunStatus, exitCode *int, errMsg string) error
}

// Agent is the runner agent that runs the pull-loop for pipeline
// execution.
type Agent struct {
	store      RunnerStore
	engine     *Engine
	config     AgentConfig
	httpClient *http.Client
	done       chan struct{}
}

// New creates a new runner agent.
func New(s RunnerStore, engine *Engine, config AgentConfig) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}

	if config.WorkRoot == "" {
		config.WorkRoot = filepath.Join(os.TempDir(), "beaconci")
	}

	// Ensure no trailing slash
	config.ControllerURL = strings.TrimSuffix(config.ControllerURL, "/")

	return &Agent{
		store:  s,
		engine: engine,
		config: config,
		done:   make(chan struct{}),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops claiming new runs and allows in-flight runs to finish.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("Runner %s starting with labels %v, concurrency %d",
		a.config.Node, a.config.Labels, a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			log.Println("Context cancelled, waiting for running pipelines to finish...")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := a.store.ClaimBatch(ctx, a.config.Node, a.config.Labels, availableSlots)
			if err != nil {
				log.Printf("ClaimBatch error: %v", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval

			log.Printf("Claimed %d runs", len(items))

			for _, item := range items {
				sem <- struct{}{}

				wg.Add(1)
				go func(item store.QueueItem) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processRun(ctx, item)
				}(item)
			}

			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processRun executes a single claimed run end to end.
func (a *Agent) processRun(ctx context.Context, item store.QueueItem) {
	var spec RunSpec
	if err := json.Unmarshal(item.Payload, &spec); err != nil {
		log.Printf("Failed to unmarshal run payload: %v", err)
		a.store.CompleteRun(context.Background(), item.RunID, store.RunStatusFailure, nil,
			fmt.Sprintf("invalid payload: %v", err))
		return
	}
	if spec.EnqueuedAt.IsZero() {
		spec.EnqueuedAt = item.EnqueuedAt
	}

	traceCtx := ctx
	if spec.Trace != nil {
		traceCtx = otel.GetTextMapPropagator().Extract(ctx, spec.Trace)
	}

	tracer := otel.Tracer("runner-agent")
	spanCtx, span := tracer.Start(traceCtx, "process_run",
		trace.WithAttributes(
			attribute.String("run.id", spec.RunID.String()),
			attribute.String("pipeline", spec.Pipeline.Name),
			attribute.String("branch", spec.Branch),
			attribute.String("node", a.config.Node),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log.Printf("Processing run %s (%s @ %s)", spec.RunID, spec.Pipeline.Name, spec.Branch)

	// The execution context is independent of the poll context: a
	// SIGTERM drains gracefully instead of killing in-flight builds.
	// Heartbeats cancel it when the controller reports the run
	// cancelled (superseded or cancelled by user).
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(spanCtx))
	defer cancelExec()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, spec.RunID, cancelExec)

	sink := newBatchSink(func(content string) {
		if err := a.sendLogs(context.Background(), spec.RunID, content); err != nil {
			log.Printf("Failed to ship logs for %s: %v", spec.RunID, err)
		}
	})
	defer sink.Close()

	workspace := filepath.Join(a.config.WorkRoot, spec.RunID.String())
	outcome := a.engine.Execute(execCtx, spec, workspace, sink, a)

	if a.config.Metrics != nil {
		a.config.Metrics.RunsCompleted.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", string(outcome.Status))))
		// Queue wait counts, same as the global timeout.
		a.config.Metrics.RunDuration.Record(context.Background(), time.Since(spec.EnqueuedAt).Seconds(),
			metric.WithAttributes(attribute.String("pipeline", spec.Pipeline.Name)))
	}

	span.SetAttributes(attribute.String("run.status", string(outcome.Status)))
	if outcome.ExitCode != nil {
		span.SetAttributes(attribute.Int("exit_code", *outcome.ExitCode))
	}

	if err := a.store.CompleteRun(context.Background(), spec.RunID,
		outcome.Status, outcome.ExitCode, outcome.Error); err != nil {
		log.Printf("Failed to record result for %s: %v", spec.RunID, err)
	}
	log.Printf("Run %s finished: %s", spec.RunID, outcome.Status)
}

// runHeartbeat reports liveness while a run executes. The response
// carries the run's current status; a cancelled run aborts execution.
func (a *Agent) runHeartbeat(ctx context.Context, runID uuid.UUID, cancelExec context.CancelFunc) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := a.sendHeartbeat(ctx, runID)
			if err != nil {
				log.Printf("Heartbeat failed for %s: %v", runID, err)
				continue
			}
			if status == string(store.RunStatusCancelled) {
				log.Printf("Run %s cancelled, aborting", runID)
				cancelExec()
				return
			}
		}
	}
}

func (a *Agent) authorize(req *http.Request) {
	if a.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.AuthToken)
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context, runID uuid.UUID) (string, error) {
	url := fmt.Sprintf("%s/internal/runs/%s/heartbeat", a.config.ControllerURL, runID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return "", err
	}
	a.authorize(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var hb api.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hb); err != nil {
		return "", err
	}
	return hb.Status, nil
}

func (a *Agent) sendLogs(ctx context.Context, runID uuid.UUID, content string) error {
	url := fmt.Sprintf("%s/internal/runs/%s/logs", a.config.ControllerURL, runID)

	body := api.AddLogRequest{
		Content: content,
	}
	reqBody, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	return nil
}

// Publish implements ArtifactPublisher by uploading the archive to
// the controller as a multipart form.
func (a *Agent) Publish(ctx context.Context, runID uuid.UUID, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archive", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/runs/%s/artifacts", a.config.ControllerURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	a.authorize(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
