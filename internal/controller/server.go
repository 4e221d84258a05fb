// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"beaconci/internal/controller/handlers"
	"beaconci/internal/controller/middleware"
)

// Options configures the HTTP server beyond its dependencies.
type Options struct {
	// AuthToken guards both the public and internal endpoints.
	// Empty disables authentication.
	AuthToken string

	// RateLimit applies to the public endpoints only, per client.
	RateLimit float64
	RateBurst int

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	authMW := middleware.RequireAuth(opts.AuthToken)
	rateMW := middleware.RateLimit(opts.RateLimit, opts.RateBurst)

	public := func(handler http.HandlerFunc) http.Handler {
		return rateMW(authMW(handler))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	// Public authenticated apis
	mux.Handle("GET /pipelines", public(h.ListPipelines))
	mux.Handle("POST /pipelines/{name}/runs", public(h.TriggerRun))
	mux.Handle("GET /runs/{id}", public(h.GetRun))
	mux.Handle("GET /runs/{id}/logs", public(h.GetRunLogs))
	mux.Handle("GET /runs/{id}/artifacts", public(h.ListRunArtifacts))
	mux.Handle("POST /runs/{id}/cancel", public(h.CancelRun))

	// Internal endpoints
	// These are called by runner agents and should run behind strict
	// network rules in addition to the shared token.
	mux.Handle("PUT /internal/runs/{id}/heartbeat", authMW(http.HandlerFunc(h.InternalHeartbeat)))
	mux.Handle("POST /internal/runs/{id}/logs", authMW(http.HandlerFunc(h.InternalAddLogs)))
	mux.Handle("POST /internal/runs/{id}/artifacts", authMW(http.HandlerFunc(h.InternalUploadArtifact)))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
