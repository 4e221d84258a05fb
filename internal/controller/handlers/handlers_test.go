package handlers

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"beaconci/internal/pipeline"
	"beaconci/internal/store"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	beginTxErr error
	pingErr    error

	// Run hooks
	createRunErr        error
	getRunByIDResp      *store.Run
	getRunByIDErr       error
	cancelSupersededIDs []uuid.UUID
	cancelSupersededErr error
	cancelRunErr        error
	completeRunErr      error
	expireResp          []uuid.UUID
	expireErr           error

	// Queue hooks
	enqueueErr error

	// Log hooks
	addLogEntryErr error
	getRunLogsResp []store.LogEntry
	getRunLogsErr  error
	pruneLogsResp  int64
	pruneLogsErr   error

	// Artifact hooks
	createArtifactErr error
	listArtifactsResp []store.Artifact
	listArtifactsErr  error
	pruneArtifacts    []string
	pruneArtifactsErr error

	// Spies (to verify arguments passed by handlers)
	capturedRun           *store.Run
	capturedPayload       []byte
	capturedAfterID       int64
	capturedLimit         int
	capturedLogContent    string
	capturedArtifact      *store.Artifact
	cancelSupersededCalls int
	cancelRunCalls        int
	capturedExpireTimeout time.Duration
	prunedPipelines       []string
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateRun(ctx context.Context, tx store.DBTransaction, run *store.Run) error {
	m.capturedRun = run
	return m.createRunErr
}

func (m *mockStore) GetRunByID(ctx context.Context, id uuid.UUID) (*store.Run, error) {
	return m.getRunByIDResp, m.getRunByIDErr
}

func (m *mockStore) CancelSuperseded(ctx context.Context, tx store.DBTransaction, pipeline, branch string) ([]uuid.UUID, error) {
	m.cancelSupersededCalls++
	return m.cancelSupersededIDs, m.cancelSupersededErr
}

func (m *mockStore) CancelRun(ctx context.Context, id uuid.UUID) error {
	m.cancelRunCalls++
	return m.cancelRunErr
}

func (m *mockStore) CompleteRun(ctx context.Context, id uuid.UUID, status store.RunStatus, exitCode *int, errMsg string) error {
	return m.completeRunErr
}

func (m *mockStore) ExpireOverdueRuns(ctx context.Context, timeout time.Duration) ([]uuid.UUID, error) {
	m.capturedExpireTimeout = timeout
	return m.expireResp, m.expireErr
}

func (m *mockStore) Enqueue(ctx context.Context, tx store.DBTransaction, runID uuid.UUID, payload []byte) (int64, error) {
	m.capturedPayload = payload
	return 1, m.enqueueErr
}

func (m *mockStore) ClaimBatch(ctx context.Context, node string, labels []string, limit int) ([]store.QueueItem, error) {
	return nil, nil
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockStore) AddLogEntry(ctx context.Context, runID uuid.UUID, content string) error {
	m.capturedLogContent = content
	return m.addLogEntryErr
}

func (m *mockStore) GetRunLogs(ctx context.Context, runID uuid.UUID, afterID int64, limit int) ([]store.LogEntry, error) {
	m.capturedAfterID = afterID
	m.capturedLimit = limit
	return m.getRunLogsResp, m.getRunLogsErr
}

func (m *mockStore) PruneLogs(ctx context.Context, pipeline string, keep int) (int64, error) {
	m.prunedPipelines = append(m.prunedPipelines, pipeline)
	return m.pruneLogsResp, m.pruneLogsErr
}

func (m *mockStore) CreateArtifact(ctx context.Context, artifact *store.Artifact) error {
	m.capturedArtifact = artifact
	return m.createArtifactErr
}

func (m *mockStore) ListRunArtifacts(ctx context.Context, runID uuid.UUID) ([]store.Artifact, error) {
	return m.listArtifactsResp, m.listArtifactsErr
}

func (m *mockStore) PruneArtifacts(ctx context.Context, pipeline string, keep int) ([]string, error) {
	return m.pruneArtifacts, m.pruneArtifactsErr
}

func testRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	registry, err := pipeline.NewRegistry("")
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return registry
}

func newTestHandlers(t *testing.T, s StoreFactory) *Handlers {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, testRegistry(t), t.TempDir(), log, nil)
}
