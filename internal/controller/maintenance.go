package controller

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"beaconci/internal/pipeline"
)

// MaintenanceStore is the database surface the maintainer needs.
type MaintenanceStore interface {
	ExpireOverdueRuns(ctx context.Context, timeout time.Duration) ([]uuid.UUID, error)
	PruneLogs(ctx context.Context, pipeline string, keep int) (int64, error)
	PruneArtifacts(ctx context.Context, pipeline string, keep int) ([]string, error)
}

// Maintainer runs the controller's periodic background work: failing
// runs past their global deadline and pruning old logs and artifacts.
type Maintainer struct {
	store     MaintenanceStore
	pipelines *pipeline.Registry
	log       *slog.Logger

	ReaperInterval    time.Duration
	RetentionInterval time.Duration
}

// NewMaintainer creates a Maintainer with default intervals.
func NewMaintainer(s MaintenanceStore, registry *pipeline.Registry, log *slog.Logger) *Maintainer {
	return &Maintainer{
		store:             s,
		pipelines:         registry,
		log:               log,
		ReaperInterval:    time.Minute,
		RetentionInterval: time.Hour,
	}
}

// Run blocks until the context is cancelled.
func (m *Maintainer) Run(ctx context.Context) {
	reaper := time.NewTicker(m.ReaperInterval)
	defer reaper.Stop()
	retention := time.NewTicker(m.RetentionInterval)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reaper.C:
			m.expireOverdue(ctx)
		case <-retention.C:
			m.prune(ctx)
		}
	}
}

// expireOverdue fails runs whose global deadline passed while they
// were queued or on a crashed runner. Runners enforce the deadline on
// live runs themselves; this is the backstop for everything else.
func (m *Maintainer) expireOverdue(ctx context.Context) {
	timeout := m.longestGlobalTimeout()

	ids, err := m.store.ExpireOverdueRuns(ctx, timeout)
	if err != nil {
		m.log.Error("failed to expire overdue runs", "error", err)
		return
	}
	for _, id := range ids {
		m.log.Warn("run expired past global deadline", "run_id", id, "timeout", timeout)
	}
}

// longestGlobalTimeout returns the largest global timeout over all
// registered pipelines. The backstop must never fire before a
// pipeline's own deadline.
func (m *Maintainer) longestGlobalTimeout() time.Duration {
	timeout := pipeline.DefaultGlobalTimeout
	for _, p := range m.pipelines.List() {
		if t := p.Options.GlobalTimeout.Std(); t > timeout {
			timeout = t
		}
	}
	return timeout
}

// prune enforces per-pipeline retention: logs and artifacts of all but
// the newest N runs are deleted.
func (m *Maintainer) prune(ctx context.Context) {
	for _, p := range m.pipelines.List() {
		deleted, err := m.store.PruneLogs(ctx, p.Name, p.Options.LogRunsToKeep)
		if err != nil {
			m.log.Error("log pruning failed", "pipeline", p.Name, "error", err)
		} else if deleted > 0 {
			m.log.Info("pruned logs", "pipeline", p.Name, "entries", deleted)
		}

		paths, err := m.store.PruneArtifacts(ctx, p.Name, p.Options.ArtifactRunsToKeep)
		if err != nil {
			m.log.Error("artifact pruning failed", "pipeline", p.Name, "error", err)
			continue
		}
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.log.Error("failed to remove artifact file", "path", path, "error", err)
			}
		}
		if len(paths) > 0 {
			m.log.Info("pruned artifacts", "pipeline", p.Name, "archives", len(paths))
		}
	}
}
