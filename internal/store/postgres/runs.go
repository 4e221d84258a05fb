package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beaconci/internal/store"
)

// CreateRun inserts the initial (pending) state of a run.
func (s *Store) CreateRun(ctx context.Context, tx store.DBTransaction, run *store.Run) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO runs (id, pipeline, branch, job_path, agent_label, category, max_total, max_per_node, status, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := executor.ExecContext(ctx, query,
		run.ID, run.Pipeline, run.Branch, run.JobPath, run.AgentLabel,
		run.Category, run.MaxTotal, run.MaxPerNode, run.Status, run.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// GetRunByID returns a run by its ID.
func (s *Store) GetRunByID(ctx context.Context, id uuid.UUID) (*store.Run, error) {
	query := `
		SELECT id, pipeline, branch, job_path, agent_label, category, max_total, max_per_node,
		       status, node, enqueued_at, started_at, completed_at, exit_code, error_message
		FROM runs WHERE id = $1
	`

	var run store.Run
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Pipeline, &run.Branch, &run.JobPath, &run.AgentLabel,
		&run.Category, &run.MaxTotal, &run.MaxPerNode,
		&run.Status, &run.Node, &run.EnqueuedAt, &run.StartedAt,
		&run.CompletedAt, &run.ExitCode, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelSuperseded cancels all still-active runs of the pipeline+branch
// and returns their IDs. Queue entries of pending runs go with them.
func (s *Store) CancelSuperseded(ctx context.Context, tx store.DBTransaction, pipeline, branch string) ([]uuid.UUID, error) {
	executor := s.getExecutor(tx)

	query := `
		UPDATE runs
		SET status = $1, completed_at = now(), error_message = 'superseded by a newer run'
		WHERE pipeline = $2 AND branch = $3 AND status IN ($4, $5)
		RETURNING id
	`
	rows, err := executor.QueryContext(ctx, query,
		store.RunStatusCancelled, pipeline, branch,
		store.RunStatusPending, store.RunStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel superseded runs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if _, err := executor.ExecContext(ctx,
			`DELETE FROM run_queue WHERE run_id = ANY($1)`, uuidArray(ids)); err != nil {
			return nil, fmt.Errorf("failed to drop superseded queue entries: %w", err)
		}
	}

	return ids, nil
}

// CancelRun marks a single active run cancelled.
func (s *Store) CancelRun(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE runs
		SET status = $1, completed_at = now(), error_message = 'cancelled by user'
		WHERE id = $2 AND status IN ($3, $4)
	`
	res, err := s.db.ExecContext(ctx, query,
		store.RunStatusCancelled, id, store.RunStatusPending, store.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel run %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM run_queue WHERE run_id = $1`, id)
	return err
}

// CompleteRun records the terminal status reported by a runner. A run
// that was cancelled while in flight keeps its cancelled status.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, status store.RunStatus, exitCode *int, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}

	query := `
		UPDATE runs
		SET status = $1, completed_at = now(), exit_code = $2, error_message = COALESCE($3, error_message)
		WHERE id = $4 AND status = $5
	`
	_, err := s.db.ExecContext(ctx, query, status, exitCode, msg, id, store.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", id, err)
	}
	return nil
}

// ExpireOverdueRuns fails every active run whose global deadline has
// passed, queue wait included.
func (s *Store) ExpireOverdueRuns(ctx context.Context, timeout time.Duration) ([]uuid.UUID, error) {
	query := `
		UPDATE runs
		SET status = $1, completed_at = now(), error_message = 'global timeout exceeded'
		WHERE status IN ($2, $3) AND enqueued_at < $4
		RETURNING id
	`
	cutoff := time.Now().Add(-timeout)
	rows, err := s.db.QueryContext(ctx, query,
		store.RunStatusFailure, store.RunStatusPending, store.RunStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire overdue runs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM run_queue WHERE run_id = ANY($1)`, uuidArray(ids)); err != nil {
			return nil, err
		}
	}

	return ids, nil
}
