package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"beaconci/pkg/api"
)

// ListRunArtifacts handles GET /runs/{id}/artifacts.
func (h *Handlers) ListRunArtifacts(w http.ResponseWriter, r *http.Request) {
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

	artifacts, err := h.store.ListRunArtifacts(ctx, runID)
	if err != nil {
		h.httpError(w, "Failed to list artifacts", http.StatusInternalServerError)
		return
	}

	var resp []api.ArtifactResponse
	for _, a := range artifacts {
		resp = append(resp, api.ArtifactResponse{
			ID:        a.ID,
			Name:      a.Name,
			SizeBytes: a.SizeBytes,
			CreatedAt: a.CreatedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
