package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"beaconci/internal/store"
	"beaconci/pkg/api"
)

func logsRequest(runID, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/runs/"+runID+"/logs"+query, nil)
	req.SetPathValue("id", runID)
	return req
}

func TestGetRunLogs_Success(t *testing.T) {
	runID := uuid.New()
	s := &mockStore{
		getRunByIDResp: &store.Run{ID: runID},
		getRunLogsResp: []store.LogEntry{
			{ID: 1, RunID: runID, Content: "=== stage setup ===", CreatedAt: time.Now()},
			{ID: 2, RunID: runID, Content: "make update", CreatedAt: time.Now()},
		},
	}
	h := newTestHandlers(t, s)

	rr := httptest.NewRecorder()
	h.GetRunLogs(rr, logsRequest(runID.String(), ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	var resp api.GetLogsResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Logs) != 2 {
		t.Fatalf("got %d log entries, want 2", len(resp.Logs))
	}
	if resp.Logs[0].ID != 1 || resp.Logs[1].Content != "make update" {
		t.Errorf("unexpected entries: %+v", resp.Logs)
	}
	if s.capturedAfterID != 0 {
		t.Errorf("default afterID should be 0, got %d", s.capturedAfterID)
	}
	if s.capturedLimit != defaultLogPageSize {
		t.Errorf("default limit should be %d, got %d", defaultLogPageSize, s.capturedLimit)
	}
}

func TestGetRunLogs_Pagination(t *testing.T) {
	runID := uuid.New()
	s := &mockStore{getRunByIDResp: &store.Run{ID: runID}}
	h := newTestHandlers(t, s)

	rr := httptest.NewRecorder()
	h.GetRunLogs(rr, logsRequest(runID.String(), "?after=42&limit=10"))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
	if s.capturedAfterID != 42 {
		t.Errorf("got afterID %d, want 42", s.capturedAfterID)
	}
	if s.capturedLimit != 10 {
		t.Errorf("got limit %d, want 10", s.capturedLimit)
	}
}

func TestGetRunLogs_InvalidAfter(t *testing.T) {
	h := newTestHandlers(t, &mockStore{})

	rr := httptest.NewRecorder()
	h.GetRunLogs(rr, logsRequest(uuid.New().String(), "?after=abc"))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetRunLogs_RunNotFound(t *testing.T) {
	s := &mockStore{getRunByIDErr: sql.ErrNoRows}
	h := newTestHandlers(t, s)

	rr := httptest.NewRecorder()
	h.GetRunLogs(rr, logsRequest(uuid.New().String(), ""))

	if rr.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestInternalAddLogs_Success(t *testing.T) {
	runID := uuid.New()
	s := &mockStore{}
	h := newTestHandlers(t, s)

	body, _ := json.Marshal(api.AddLogRequest{Content: "building...\n"})
	req := httptest.NewRequest(http.MethodPost, "/internal/runs/"+runID.String()+"/logs", bytes.NewReader(body))
	req.SetPathValue("id", runID.String())
	rr := httptest.NewRecorder()
	h.InternalAddLogs(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
	if s.capturedLogContent != "building...\n" {
		t.Errorf("got content %q", s.capturedLogContent)
	}
}

func TestInternalAddLogs_EmptyContent(t *testing.T) {
	h := newTestHandlers(t, &mockStore{})

	body, _ := json.Marshal(api.AddLogRequest{})
	req := httptest.NewRequest(http.MethodPost, "/internal/runs/"+uuid.New().String()+"/logs", bytes.NewReader(body))
	req.SetPathValue("id", uuid.New().String())
	rr := httptest.NewRecorder()
	h.InternalAddLogs(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
