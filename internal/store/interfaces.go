package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// RunStore handles the persistence of pipeline runs.
type RunStore interface {
	// CreateRun inserts the initial (pending) state of a run.
	CreateRun(ctx context.Context, tx DBTransaction, run *Run) error

	// GetRunByID returns a run by its ID.
	GetRunByID(ctx context.Context, id uuid.UUID) (*Run, error)

	// CancelSuperseded cancels all still-active runs of the given
	// pipeline+branch and returns their IDs. Used when a newer run
	// on a non-mainline branch supersedes older ones.
	CancelSuperseded(ctx context.Context, tx DBTransaction, pipeline, branch string) ([]uuid.UUID, error)

	// CancelRun marks a single active run cancelled. Returns
	// sql.ErrNoRows if the run is already terminal.
	CancelRun(ctx context.Context, id uuid.UUID) error

	// CompleteRun records the terminal status reported by a runner.
	CompleteRun(ctx context.Context, id uuid.UUID, status RunStatus, exitCode *int, errMsg string) error

	// ExpireOverdueRuns fails every active run whose global deadline
	// (enqueue time + timeout) has passed. Returns the failed IDs.
	ExpireOverdueRuns(ctx context.Context, timeout time.Duration) ([]uuid.UUID, error)
}

// Queue defines the queue operations used by runners to claim work.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Queue interface {
	// Enqueue adds a pending run to the queue.
	Enqueue(ctx context.Context, tx DBTransaction, runID uuid.UUID, payload []byte) (int64, error)

	// ClaimBatch atomically claims up to limit queued runs whose
	// label requirements are satisfied by the node's labels, without
	// exceeding any category's max-total or max-per-node bounds.
	// Claimed runs transition to running on the given node.
	ClaimBatch(ctx context.Context, node string, labels []string, limit int) ([]QueueItem, error)

	// Count returns the number of queued runs.
	Count(ctx context.Context) (int64, error)
}

// QueueItem is a claimed run handed to a runner.
type QueueItem struct {
	RunID      uuid.UUID
	Payload    []byte
	EnqueuedAt time.Time
}

// LogStore persists run logs shipped by runners.
type LogStore interface {
	AddLogEntry(ctx context.Context, runID uuid.UUID, content string) error
	GetRunLogs(ctx context.Context, runID uuid.UUID, afterID int64, limit int) ([]LogEntry, error)

	// PruneLogs deletes logs of all but the newest keep runs of the
	// pipeline. Returns the number of deleted entries.
	PruneLogs(ctx context.Context, pipeline string, keep int) (int64, error)
}

// ArtifactStore persists artifact metadata.
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, artifact *Artifact) error
	ListRunArtifacts(ctx context.Context, runID uuid.UUID) ([]Artifact, error)

	// PruneArtifacts deletes artifact rows of all but the newest keep
	// runs of the pipeline and returns the orphaned file paths so the
	// caller can remove them from disk.
	PruneArtifacts(ctx context.Context, pipeline string, keep int) ([]string, error)
}
