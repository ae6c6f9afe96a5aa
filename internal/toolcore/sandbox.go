package toolcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nugget/agentfabric/internal/httpkit"
)

// SandboxClient submits python_sandbox executions to the external
// sandbox service and polls for their result, per §4.6.
type SandboxClient struct {
	baseURL string
	client  *http.Client
}

// NewSandboxClient builds a client against the sandbox's base URL (no
// trailing slash).
func NewSandboxClient(baseURL string) *SandboxClient {
	return &SandboxClient{
		baseURL: baseURL,
		client:  httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// submitResponse is the sandbox's POST /execute response body.
type submitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// Submit POSTs params to the sandbox and returns the execution_id it
// assigns. The submit deadline is independent of the later polling
// deadline, per §5.
func (s *SandboxClient) Submit(ctx context.Context, params map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"params": params})
	if err != nil {
		return "", fmt.Errorf("marshal sandbox params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sandbox submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sandbox submit: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("sandbox submit: unexpected status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sandbox submit response: %w", err)
	}
	if out.ExecutionID == "" {
		return "", fmt.Errorf("sandbox submit: empty execution_id in response")
	}
	return out.ExecutionID, nil
}

// PollOutcome classifies a single GET /result/{execution_id} response.
type PollOutcome int

const (
	PollPending PollOutcome = iota
	PollDone
	PollLost
	PollError
)

// Poll issues one GET against /result/{execution_id} and classifies the
// response per §4.6: 202 -> pending, 200 -> done, 404 -> lost, anything
// else -> error.
func (s *SandboxClient) Poll(ctx context.Context, executionID string) (PollOutcome, Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/result/"+executionID, nil)
	if err != nil {
		return PollError, Result{}, fmt.Errorf("build sandbox poll request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return PollError, Result{}, fmt.Errorf("sandbox poll: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 65536)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return PollPending, Result{}, nil
	case http.StatusNotFound:
		return PollLost, Result{}, nil
	case http.StatusOK:
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return PollError, Result{}, fmt.Errorf("decode sandbox result: %w", err)
		}
		return PollDone, result, nil
	default:
		return PollError, Result{}, fmt.Errorf("sandbox poll: unexpected status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}
}

// Ping checks that the sandbox service is reachable, for use as a
// connwatch.ProbeFunc: a non-2xx response or transport error counts as
// not ready.
func (s *SandboxClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build sandbox health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox health check: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}
