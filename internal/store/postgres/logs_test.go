package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestAddLogEntry(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	runID := uuid.New()
	mock.ExpectExec(`INSERT INTO run_logs`).
		WithArgs(runID, "stage build: make beacon_node").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.AddLogEntry(context.Background(), runID, "stage build: make beacon_node"); err != nil {
		t.Fatalf("AddLogEntry failed: %v", err)
	}
}

func TestGetRunLogs_Pagination(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	runID := uuid.New()
	mock.ExpectQuery(`SELECT id, run_id, content, created_at`).
		WithArgs(runID, int64(10), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "content", "created_at"}).
			AddRow(int64(11), runID, "line a", time.Now()).
			AddRow(int64(12), runID, "line b", time.Now()))

	logs, err := s.GetRunLogs(context.Background(), runID, 10, 100)
	if err != nil {
		t.Fatalf("GetRunLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d entries, want 2", len(logs))
	}
	if logs[0].ID != 11 || logs[1].ID != 12 {
		t.Errorf("entries out of order: %+v", logs)
	}
}

func TestPruneLogs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`DELETE FROM run_logs`).
		WithArgs("beacon-node", 10).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := s.PruneLogs(context.Background(), "beacon-node", 10)
	if err != nil {
		t.Fatalf("PruneLogs failed: %v", err)
	}
	if deleted != 42 {
		t.Errorf("got %d deleted, want 42", deleted)
	}
}

func TestPruneArtifacts_ReturnsOrphanedPaths(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`DELETE FROM artifacts`).
		WithArgs("beacon-node", 5).
		WillReturnRows(sqlmock.NewRows([]string{"path"}).
			AddRow("/var/lib/beaconci/artifacts/r1/resttest.tar.gz").
			AddRow("/var/lib/beaconci/artifacts/r1/testnet-logs.tar.gz"))

	paths, err := s.PruneArtifacts(context.Background(), "beacon-node", 5)
	if err != nil {
		t.Fatalf("PruneArtifacts failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("got %d paths, want 2", len(paths))
	}
}
