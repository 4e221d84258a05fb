package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"beaconci/internal/logger"
	"beaconci/internal/pipeline"
	"beaconci/internal/runner"
	"beaconci/internal/store"
	"beaconci/pkg/api"
)

// TriggerRun handles POST /pipelines/{name}/runs.
// It resolves parameters, cancels superseded runs on non-mainline
// branches and enqueues the run for a matching build agent.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name := r.PathValue("name")
	p, err := h.pipelines.Get(name)
	if err != nil {
		h.httpError(w, "Unknown pipeline", http.StatusNotFound)
		return
	}

	var req api.TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Branch == "" {
		h.httpError(w, "Branch is required", http.StatusBadRequest)
		return
	}

	agentLabel, err := pipeline.ResolveAgentLabel(req.AgentLabel, req.JobPath)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := pipeline.Params{
		AgentLabel: agentLabel,
		Verbosity:  api.VerbosityQuiet,
		NimCommit:  req.NimCommit,
	}
	if req.Verbosity != nil {
		params.Verbosity = *req.Verbosity
	}
	if params.NimCommit == "" {
		params.NimCommit = pipeline.DefaultNimCommit(req.JobPath)
	}
	if err := params.Validate(); err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	run := &store.Run{
		ID:         uuid.New(),
		Pipeline:   p.Name,
		Branch:     req.Branch,
		JobPath:    req.JobPath,
		AgentLabel: agentLabel,
		Category:   p.Options.Category,
		MaxTotal:   p.Options.MaxTotal,
		MaxPerNode: p.Options.MaxPerNode,
		Status:     store.RunStatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	spec := runner.RunSpec{
		RunID:      run.ID,
		Pipeline:   *p,
		Branch:     run.Branch,
		JobPath:    run.JobPath,
		Params:     params,
		EnqueuedAt: run.EnqueuedAt,
	}

	// Hand the trace across the queue so the runner's span joins
	// this request's trace.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		spec.Trace = carrier
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		h.httpError(w, "Failed to serialize run", http.StatusInternalServerError)
		return
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	// Feature branches only keep their newest run. Mainline branches
	// let every run finish.
	var superseded []uuid.UUID
	if !p.IsMainline(req.Branch) {
		superseded, err = h.store.CancelSuperseded(ctx, tx, p.Name, req.Branch)
		if err != nil {
			h.httpError(w, "Failed to cancel superseded runs", http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.CreateRun(ctx, tx, run); err != nil {
		h.httpError(w, "Failed to create run", http.StatusInternalServerError)
		return
	}

	if _, err := h.store.Enqueue(ctx, tx, run.ID, payload); err != nil {
		h.httpError(w, "Failed to enqueue", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.RunsTriggered.Add(ctx, 1)
		if len(superseded) > 0 {
			h.metrics.RunsSuperseded.Add(ctx, int64(len(superseded)))
		}
	}

	ctx = logger.WithRunID(ctx, run.ID)
	logger.FromContext(ctx, h.log).Info("run triggered",
		"pipeline", p.Name,
		"branch", req.Branch,
		"agent_label", agentLabel,
		"superseded", len(superseded))

	resp := api.TriggerRunResponse{RunID: run.ID.String()}
	for _, id := range superseded {
		resp.Superseded = append(resp.Superseded, id.String())
	}
	h.respondJson(w, http.StatusAccepted, resp)
}

// GetRun handles GET /runs/{id}.
// Returns the current status and result of a pipeline run.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRunByID(ctx, runID)
	if err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, runToResponse(run))
}

// CancelRun handles POST /runs/{id}/cancel.
// A queued run is dropped immediately; an in-flight run is aborted by
// its runner on the next heartbeat.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetRunByID(ctx, runID); err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}

	if err := h.store.CancelRun(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.httpError(w, "Run already finished", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to cancel run", http.StatusInternalServerError)
		return
	}

	h.log.Info("run cancelled", "run_id", runID)
	h.respondJson(w, http.StatusOK, map[string]string{"status": string(store.RunStatusCancelled)})
}

func runToResponse(run *store.Run) api.RunResponse {
	resp := api.RunResponse{
		ID:          run.ID.String(),
		Pipeline:    run.Pipeline,
		Branch:      run.Branch,
		JobPath:     run.JobPath,
		Status:      string(run.Status),
		AgentLabel:  run.AgentLabel,
		EnqueuedAt:  run.EnqueuedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		ExitCode:    run.ExitCode,
		Error:       run.ErrorMessage,
	}
	if run.Node != nil {
		resp.Node = *run.Node
	}
	return resp
}
