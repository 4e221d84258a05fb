package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"beaconci/internal/store"
)

// Enqueue adds a pending run to the run_queue. Category and label
// requirements are copied from the run row so claiming is a single
// table scan.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, payload []byte) (int64, error) {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO run_queue (run_id, category, labels_required, payload, enqueued_at)
		SELECT id, category, string_to_array(replace(agent_label, ' ', ''), '&&'), $2, enqueued_at
		FROM runs
		WHERE id = $1
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query, runID, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue run %s: %w", runID, err)
	}
	return id, nil
}

// ClaimBatch claims up to limit queued runs for a node using
// SELECT ... FOR UPDATE SKIP LOCKED, honoring each category's
// max-total and max-per-node bounds. Runs the node cannot satisfy
// (label mismatch, category at capacity) stay queued.
func (s *Store) ClaimBatch(ctx context.Context, node string, labels []string, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	categories, err := s.queuedCategories(ctx, tx)
	if err != nil {
		return nil, err
	}

	var items []store.QueueItem
	for _, category := range categories {
		if len(items) >= limit {
			break
		}
		claimed, err := s.claimCategory(ctx, tx, category, node, labels, limit-len(items))
		if err != nil {
			return nil, err
		}
		items = append(items, claimed...)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return items, nil
}

func (s *Store) queuedCategories(ctx context.Context, tx store.DBTransaction) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT category FROM run_queue ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// claimCategory claims runs within a single throttle category. An
// advisory lock serializes concurrent claimers so the category bounds
// hold across nodes.
func (s *Store) claimCategory(ctx context.Context, tx store.DBTransaction, category, node string, labels []string, limit int) ([]store.QueueItem, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, category); err != nil {
		return nil, fmt.Errorf("failed to lock category %s: %w", category, err)
	}

	var activeTotal, activeOnNode int
	countQuery := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE node = $2)
		FROM runs
		WHERE category = $1 AND status = $3
	`
	if err := tx.QueryRowContext(ctx, countQuery, category, node, store.RunStatusRunning).
		Scan(&activeTotal, &activeOnNode); err != nil {
		return nil, fmt.Errorf("failed to count active runs in %s: %w", category, err)
	}

	candidateQuery := `
		SELECT q.id, q.run_id, q.payload, q.enqueued_at, r.max_total, r.max_per_node
		FROM run_queue q
		JOIN runs r ON r.id = q.run_id
		WHERE q.category = $1 AND q.labels_required <@ $2 AND r.status = $3
		ORDER BY q.id
		FOR UPDATE OF q SKIP LOCKED
		LIMIT $4
	`
	rows, err := tx.QueryContext(ctx, candidateQuery,
		category, pq.Array(labels), store.RunStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claim candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		queueID    int64
		item       store.QueueItem
		maxTotal   int
		maxPerNode int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.queueID, &c.item.RunID, &c.item.Payload,
			&c.item.EnqueuedAt, &c.maxTotal, &c.maxPerNode); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var items []store.QueueItem
	for _, c := range candidates {
		if activeTotal >= c.maxTotal || activeOnNode >= c.maxPerNode {
			break
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM run_queue WHERE id = $1`, c.queueID); err != nil {
			return nil, fmt.Errorf("failed to remove claimed queue entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = $1, node = $2, started_at = now() WHERE id = $3`,
			store.RunStatusRunning, node, c.item.RunID); err != nil {
			return nil, fmt.Errorf("failed to mark run %s running: %w", c.item.RunID, err)
		}

		activeTotal++
		activeOnNode++
		items = append(items, c.item)
	}

	return items, nil
}

// Count returns the number of queued runs.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// uuidArray adapts a UUID slice for a Postgres ANY($1) clause.
func uuidArray(ids []uuid.UUID) interface{} {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}
