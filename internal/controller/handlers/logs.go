package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"beaconci/pkg/api"
)

const defaultLogPageSize = 1000

// GetRunLogs handles GET /runs/{id}/logs.
// Pagination: pass after=<last seen id> to fetch the next page, the
// way a client tails a live run.
func (h *Handlers) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	var afterID int64
	if after := r.URL.Query().Get("after"); after != "" {
		afterID, err = strconv.ParseInt(after, 10, 64)
		if err != nil {
			h.httpError(w, "Invalid after parameter", http.StatusBadRequest)
			return
		}
	}

	limit := defaultLogPageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 || limit > defaultLogPageSize {
			h.httpError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	if _, err := h.store.GetRunByID(ctx, runID); err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}

	entries, err := h.store.GetRunLogs(ctx, runID, afterID, limit)
	if err != nil {
		h.httpError(w, "Failed to fetch logs", http.StatusInternalServerError)
		return
	}

	resp := api.GetLogsResponse{}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, api.LogEntry{
			ID:        e.ID,
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// InternalAddLogs handles POST /internal/runs/{id}/logs.
// Runners ship batched output lines here while a run executes.
func (h *Handlers) InternalAddLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	var req api.AddLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		h.httpError(w, "Content is required", http.StatusBadRequest)
		return
	}

	if err := h.store.AddLogEntry(ctx, runID, req.Content); err != nil {
		h.httpError(w, "Failed to store logs", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
