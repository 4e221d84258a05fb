package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"beaconci/internal/store"
)

func (s *Store) CreateArtifact(ctx context.Context, artifact *store.Artifact) error {
	query := `
		INSERT INTO artifacts (run_id, name, path, size_bytes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		artifact.RunID, artifact.Name, artifact.Path, artifact.SizeBytes,
	).Scan(&artifact.ID, &artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", artifact.Name, err)
	}
	return nil
}

func (s *Store) ListRunArtifacts(ctx context.Context, runID uuid.UUID) ([]store.Artifact, error) {
	query := `
		SELECT id, run_id, name, path, size_bytes, created_at
		FROM artifacts
		WHERE run_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []store.Artifact
	for rows.Next() {
		var a store.Artifact
		if err := rows.Scan(&a.ID, &a.RunID, &a.Name, &a.Path, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}

// PruneArtifacts deletes artifact rows of all but the newest keep
// terminal runs of the pipeline and returns the orphaned file paths.
func (s *Store) PruneArtifacts(ctx context.Context, pipeline string, keep int) ([]string, error) {
	query := `
		DELETE FROM artifacts
		WHERE run_id IN (
			SELECT id FROM runs
			WHERE pipeline = $1 AND completed_at IS NOT NULL
			ORDER BY completed_at DESC
			OFFSET $2
		)
		RETURNING path
	`
	rows, err := s.db.QueryContext(ctx, query, pipeline, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to prune artifacts for %s: %w", pipeline, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}
