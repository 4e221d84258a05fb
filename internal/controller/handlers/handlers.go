// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"beaconci/internal/observability"
	"beaconci/internal/pipeline"
	"beaconci/internal/store"
	"beaconci/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.RunStore
	store.Queue
	store.LogStore
	store.ArtifactStore
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store       StoreFactory
	pipelines   *pipeline.Registry
	artifactDir string
	log         *slog.Logger
	metrics     *observability.RunMetrics
}

// New creates a new Handlers instance with the given dependencies.
// metrics may be nil when metrics are not initialized (tests).
func New(s StoreFactory, registry *pipeline.Registry, artifactDir string, log *slog.Logger, metrics *observability.RunMetrics) *Handlers {
	return &Handlers{
		store:       s,
		pipelines:   registry,
		artifactDir: artifactDir,
		log:         log,
		metrics:     metrics,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
