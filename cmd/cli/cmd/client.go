package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"beaconci/pkg/api"
)

// RunClient handles API calls to the beaconci controller.
type RunClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewRunClient creates a new client with the given base URL and token.
// An empty token is fine when the controller runs with auth disabled.
func NewRunClient(baseURL, token string) *RunClient {
	return &RunClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *RunClient) do(method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// TriggerRun sends POST /pipelines/{name}/runs to enqueue a new run.
func (c *RunClient) TriggerRun(pipeline string, req api.TriggerRunRequest) (*api.TriggerRunResponse, error) {
	resp, err := c.do(http.MethodPost, fmt.Sprintf("%s/pipelines/%s/runs", c.BaseURL, pipeline), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.TriggerRunResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// GetRun sends GET /runs/{id} to retrieve run details.
func (c *RunClient) GetRun(runID string) (*api.RunResponse, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("%s/runs/%s", c.BaseURL, runID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.RunResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// GetLogs sends GET /runs/{id}/logs to retrieve run logs after the
// given entry id.
func (c *RunClient) GetLogs(runID string, afterID int64) ([]api.LogEntry, error) {
	endpoint := fmt.Sprintf("%s/runs/%s/logs?after=%d", c.BaseURL, runID, afterID)
	resp, err := c.do(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.GetLogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Logs, nil
}

// CancelRun sends POST /runs/{id}/cancel.
func (c *RunClient) CancelRun(runID string) error {
	resp, err := c.do(http.MethodPost, fmt.Sprintf("%s/runs/%s/cancel", c.BaseURL, runID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}

// ListPipelines sends GET /pipelines.
func (c *RunClient) ListPipelines() ([]api.PipelineResponse, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("%s/pipelines", c.BaseURL), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result []api.PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}

// ListArtifacts sends GET /runs/{id}/artifacts.
func (c *RunClient) ListArtifacts(runID string) ([]api.ArtifactResponse, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("%s/runs/%s/artifacts", c.BaseURL, runID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result []api.ArtifactResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}
