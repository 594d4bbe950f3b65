package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
)

type createRunRequest struct {
	Prompt   string            `json:"prompt"`
	Images   []string          `json:"images,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type resumeRunRequest struct {
	AgentRunID int64    `json:"agentRunId"`
	Prompt     string   `json:"prompt"`
	Images     []string `json:"images,omitempty"`
}

// LogLine is one entry from a run's log stream.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level,omitempty"`
	Message   string    `json:"message"`
}

// LogsPage is one page of a run's logs together with the run status the
// remote reported when the page was served.
type LogsPage struct {
	Logs   []LogLine             `json:"logs"`
	Status agentrun.RemoteStatus `json:"status"`
	Total  int                   `json:"total"`
}

func (c *Client) runPath(suffix string) string {
	return fmt.Sprintf("/organizations/%s/agent/run%s", c.orgID, suffix)
}

// CreateRun starts a new remote agent run for the given prompt.
func (c *Client) CreateRun(ctx context.Context, prompt string, metadata map[string]string) (*agentrun.RunRecord, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Msg: "prompt must not be empty"}
	}

	endpoint := c.runPath("")
	data, err := c.do(ctx, http.MethodPost, endpoint, false, createRunRequest{
		Prompt:   prompt,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}
	return decodeRun(endpoint, data)
}

// GetRun fetches the current state of a run. Never served from cache so that
// polling always observes fresh status.
func (c *Client) GetRun(ctx context.Context, runID int64) (*agentrun.RunRecord, error) {
	if runID == 0 {
		return nil, &ValidationError{Msg: "run id is required"}
	}

	endpoint := c.runPath(fmt.Sprintf("/%d", runID))
	data, err := c.do(ctx, http.MethodGet, endpoint, false, nil)
	if err != nil {
		return nil, err
	}
	return decodeRun(endpoint, data)
}

// ResumeRun sends a follow-up prompt to a paused or running agent run.
func (c *Client) ResumeRun(ctx context.Context, runID int64, prompt string) (*agentrun.RunRecord, error) {
	if runID == 0 {
		return nil, &ValidationError{Msg: "run id is required"}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Msg: "prompt must not be empty"}
	}

	endpoint := c.runPath("/resume")
	data, err := c.do(ctx, http.MethodPost, endpoint, false, resumeRunRequest{
		AgentRunID: runID,
		Prompt:     prompt,
	})
	if err != nil {
		return nil, err
	}
	return decodeRun(endpoint, data)
}

// GetLogs fetches a page of run logs. Cacheable: repeated reads of the same
// page within the cache TTL are served locally.
func (c *Client) GetLogs(ctx context.Context, runID int64, skip, limit int) (*LogsPage, error) {
	if runID == 0 {
		return nil, &ValidationError{Msg: "run id is required"}
	}
	if skip < 0 || limit < 0 {
		return nil, &ValidationError{Msg: "skip and limit must not be negative"}
	}

	endpoint := c.runPath(fmt.Sprintf("/%d/logs?skip=%d&limit=%d", runID, skip, limit))
	data, err := c.do(ctx, http.MethodGet, endpoint, true, nil)
	if err != nil {
		return nil, err
	}

	var page LogsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return &page, nil
}

func decodeRun(endpoint string, data []byte) (*agentrun.RunRecord, error) {
	var rec agentrun.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	rec.Status = rec.Status.Normalize()
	return &rec, nil
}
