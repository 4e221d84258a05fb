// Package api contains shared JSON request/response structs.
// This package is shared between the CLI, Controller and Runner.
package api

import "time"

// TriggerRunRequest is the request body for triggering a pipeline run.
type TriggerRunRequest struct {
	Branch  string `json:"branch"`
	JobPath string `json:"job_path"`

	// Parameter overrides. Empty values fall back to the defaults
	// derived from the job path.
	AgentLabel string `json:"agent_label,omitempty"`
	Verbosity  *int   `json:"verbosity,omitempty"`
	NimCommit  string `json:"nim_commit,omitempty"`
}

// TriggerRunResponse is the response body after triggering a run.
type TriggerRunResponse struct {
	RunID string `json:"run_id"`

	// IDs of active runs on the same branch that were cancelled
	// because this run superseded them.
	Superseded []string `json:"superseded,omitempty"`
}

// RunResponse represents a pipeline run in API responses.
type RunResponse struct {
	ID          string     `json:"id"`
	Pipeline    string     `json:"pipeline"`
	Branch      string     `json:"branch"`
	JobPath     string     `json:"job_path"`
	Status      string     `json:"status"`
	AgentLabel  string     `json:"agent_label"`
	Node        string     `json:"node,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// PipelineResponse describes a registered pipeline definition.
type PipelineResponse struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	MaxTotal   int    `json:"max_total"`
	MaxPerNode int    `json:"max_per_node"`
	Stages     int    `json:"stages"`
}

// HeartbeatResponse carries the run's current status back to the
// runner. A cancelled status tells the runner to abort the run.
type HeartbeatResponse struct {
	Status string `json:"status"`
}

// AddLogRequest is the log batch payload sent by the runner.
type AddLogRequest struct {
	Content string `json:"content"`
}

// LogEntry represents a single log line in the response.
type LogEntry struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GetLogsResponse is the response body for fetching logs.
type GetLogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// ArtifactResponse describes an uploaded artifact archive.
type ArtifactResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Verbosity levels accepted by the VERBOSITY parameter.
const (
	VerbosityQuiet   = 0
	VerbosityNormal  = 1
	VerbosityVerbose = 2
)
