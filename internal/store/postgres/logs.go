package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"beaconci/internal/store"
)

func (s *Store) AddLogEntry(ctx context.Context, runID uuid.UUID, content string) error {
	query := `INSERT INTO run_logs (run_id, content) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, runID, content)
	return err
}

func (s *Store) GetRunLogs(ctx context.Context, runID uuid.UUID, afterID int64, limit int) ([]store.LogEntry, error) {
	query := `
		SELECT id, run_id, content, created_at
		FROM run_logs
		WHERE run_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, runID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []store.LogEntry
	for rows.Next() {
		var entry store.LogEntry
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Content, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// PruneLogs deletes logs of all but the newest keep terminal runs of
// the pipeline. Logs of active runs are never pruned.
func (s *Store) PruneLogs(ctx context.Context, pipeline string, keep int) (int64, error) {
	query := `
		DELETE FROM run_logs
		WHERE run_id IN (
			SELECT id FROM runs
			WHERE pipeline = $1 AND completed_at IS NOT NULL
			ORDER BY completed_at DESC
			OFFSET $2
		)
	`
	res, err := s.db.ExecContext(ctx, query, pipeline, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs for %s: %w", pipeline, err)
	}
	return res.RowsAffected()
}
