package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"beaconci/internal/store"
	"beaconci/pkg/api"
)

// maxArchiveBytes bounds a single artifact upload.
const maxArchiveBytes = 1 << 30

// ---------------------------------------------------------
// Internal Runner Endpoints
// These are called by runner agents, not by users.
// ---------------------------------------------------------

// InternalHeartbeat handles PUT /internal/runs/{id}/heartbeat.
// The response carries the run's current status; a runner seeing
// "cancelled" aborts the run.
func (h *Handlers) InternalHeartbeat(w http.ResponseWriter, r *http.Request) {
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

	h.respondJson(w, http.StatusOK, api.HeartbeatResponse{Status: string(run.Status)})
}

// InternalUploadArtifact handles POST /internal/runs/{id}/artifacts.
// Accepts a multipart form with an "archive" file part and stores it
// under the artifact root.
func (h *Handlers) InternalUploadArtifact(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, maxArchiveBytes)
	file, header, err := r.FormFile("archive")
	if err != nil {
		h.httpError(w, "Missing archive file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || strings.ContainsAny(name, "/\\") {
		h.httpError(w, "Invalid archive name", http.StatusBadRequest)
		return
	}

	dir := filepath.Join(h.artifactDir, runID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.httpError(w, "Failed to store archive", http.StatusInternalServerError)
		return
	}

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		h.httpError(w, "Failed to store archive", http.StatusInternalServerError)
		return
	}
	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(path)
		h.httpError(w, "Failed to store archive", http.StatusInternalServerError)
		return
	}

	artifact := &store.Artifact{
		RunID:     runID,
		Name:      name,
		Path:      path,
		SizeBytes: size,
	}
	if err := h.store.CreateArtifact(ctx, artifact); err != nil {
		os.Remove(path)
		h.httpError(w, "Failed to record artifact", http.StatusInternalServerError)
		return
	}

	h.log.Info("artifact uploaded", "run_id", runID, "name", name, "size_bytes", size)

	h.respondJson(w, http.StatusCreated, api.ArtifactResponse{
		ID:        artifact.ID,
		Name:      artifact.Name,
		SizeBytes: artifact.SizeBytes,
		CreatedAt: artifact.CreatedAt,
	})
}
