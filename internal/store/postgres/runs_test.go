package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"beaconci/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestCreateRun_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	run := &store.Run{
		ID:         uuid.New(),
		Pipeline:   "beacon-node",
		Branch:     "feature/fork-choice",
		JobPath:    "ci/beacon-node/platforms/linux/x86_64",
		AgentLabel: "linux && x86_64",
		Category:   "beacon-node",
		MaxTotal:   9,
		MaxPerNode: 1,
		Status:     store.RunStatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(run.ID, run.Pipeline, run.Branch, run.JobPath, run.AgentLabel,
			run.Category, run.MaxTotal, run.MaxPerNode, run.Status, run.EnqueuedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateRun(context.Background(), nil, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetRunByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE id`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetRunByID(context.Background(), id); err != sql.ErrNoRows {
		t.Errorf("got %v, want sql.ErrNoRows", err)
	}
}

func TestCancelSuperseded_CancelsActiveAndDropsQueue(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	r1 := uuid.New()
	r2 := uuid.New()

	mock.ExpectQuery(`UPDATE runs`).
		WithArgs(store.RunStatusCancelled, "beacon-node", "feature/x",
			store.RunStatusPending, store.RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(r1).AddRow(r2))
	mock.ExpectExec(`DELETE FROM run_queue`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := s.CancelSuperseded(context.Background(), nil, "beacon-node", "feature/x")
	if err != nil {
		t.Fatalf("CancelSuperseded failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d cancelled runs, want 2", len(ids))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCancelSuperseded_NothingActive(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`UPDATE runs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := s.CancelSuperseded(context.Background(), nil, "beacon-node", "stable")
	if err != nil {
		t.Fatalf("CancelSuperseded failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("got %d cancelled runs, want 0", len(ids))
	}
}

func TestCancelRun_AlreadyTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE runs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.CancelRun(context.Background(), id); err != sql.ErrNoRows {
		t.Errorf("got %v, want sql.ErrNoRows for terminal run", err)
	}
}

func TestCompleteRun_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	exitCode := 0
	mock.ExpectExec(`UPDATE runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CompleteRun(context.Background(), id, store.RunStatusSuccess, &exitCode, ""); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestExpireOverdueRuns(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	overdue := uuid.New()
	mock.ExpectQuery(`UPDATE runs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(overdue))
	mock.ExpectExec(`DELETE FROM run_queue`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ids, err := s.ExpireOverdueRuns(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireOverdueRuns failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != overdue {
		t.Errorf("got %v, want [%s]", ids, overdue)
	}
}
