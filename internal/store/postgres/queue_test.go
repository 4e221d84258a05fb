package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestEnqueue_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	runID := uuid.New()
	payload := []byte(`{"branch":"feature/x"}`)

	mock.ExpectQuery(`INSERT INTO run_queue`).
		WithArgs(runID, payload).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.Enqueue(context.Background(), nil, runID, payload)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id != 7 {
		t.Errorf("got queue id %d, want 7", id)
	}
}

func TestEnqueue_RunMissing(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`INSERT INTO run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.Enqueue(context.Background(), nil, uuid.New(), []byte(`{}`)); err == nil {
		t.Error("expected error when run row is missing")
	}
}

func TestClaimBatch_ClaimsWithinBounds(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	runID := uuid.New()
	enqueued := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT category FROM run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("beacon-node"))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count_node"}).AddRow(0, 0))
	mock.ExpectQuery(`SELECT q.id, q.run_id`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "run_id", "payload", "enqueued_at", "max_total", "max_per_node"}).
			AddRow(int64(1), runID, []byte(`{}`), enqueued, 9, 1))
	mock.ExpectExec(`DELETE FROM run_queue WHERE id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE runs SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items, err := s.ClaimBatch(context.Background(), "node-1", []string{"linux", "x86_64"}, 4)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].RunID != runID {
		t.Errorf("got run %s, want %s", items[0].RunID, runID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimBatch_NodeAtPerNodeBound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	runID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT category FROM run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("beacon-node"))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// One run already active on this node; max_per_node is 1.
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count_node"}).AddRow(1, 1))
	mock.ExpectQuery(`SELECT q.id, q.run_id`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "run_id", "payload", "enqueued_at", "max_total", "max_per_node"}).
			AddRow(int64(2), runID, []byte(`{}`), time.Now(), 9, 1))
	mock.ExpectCommit()

	items, err := s.ClaimBatch(context.Background(), "node-1", []string{"linux"}, 4)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0: per-node bound must gate the claim", len(items))
	}
}

func TestClaimBatch_CategoryAtTotalBound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT category FROM run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("beacon-node"))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Nine runs active in the category across the fleet.
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count_node"}).AddRow(9, 0))
	mock.ExpectQuery(`SELECT q.id, q.run_id`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "run_id", "payload", "enqueued_at", "max_total", "max_per_node"}).
			AddRow(int64(3), uuid.New(), []byte(`{}`), time.Now(), 9, 1))
	mock.ExpectCommit()

	items, err := s.ClaimBatch(context.Background(), "node-2", []string{"linux"}, 4)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0: category bound must gate the claim", len(items))
	}
}

func TestClaimBatch_EmptyQueue(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT category FROM run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"category"}))
	mock.ExpectCommit()

	items, err := s.ClaimBatch(context.Background(), "node-1", []string{"linux"}, 4)
	if err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestCount(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM run_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("got %d, want 3", count)
	}
}
