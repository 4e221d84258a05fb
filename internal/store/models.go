// Package store contains the database layer for beaconci.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Run represents one execution instance of a pipeline.
type Run struct {
	ID         uuid.UUID
	Pipeline   string
	Branch     string
	JobPath    string
	AgentLabel string
	Category   string

	// Throttle bounds copied from the pipeline definition at trigger
	// time, so claiming needs no registry lookup.
	MaxTotal   int
	MaxPerNode int

	Status RunStatus

	// Node is set once a runner claims the run.
	Node *string

	EnqueuedAt   time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExitCode     *int
	ErrorMessage *string
}

// RunStatus represents the state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailure   RunStatus = "failure"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusCancelled:
		return true
	}
	return false
}

// LogEntry is a batch of log lines shipped by a runner.
type LogEntry struct {
	ID        int64
	RunID     uuid.UUID
	Content   string
	CreatedAt time.Time
}

// Artifact is metadata for an archive uploaded by a runner. The
// archive body lives on the controller's artifact root at Path.
type Artifact struct {
	ID        int64
	RunID     uuid.UUID
	Name      string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}
