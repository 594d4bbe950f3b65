package ws

import "github.com/agentdeck/agentdeck/internal/domain/agentrun"

// Event type constants for WebSocket messages.
const (
	EventRunStatus  = "run.status"
	EventRunHistory = "run.history"
	EventValidation = "run.validation"
	EventProject    = "project.updated"
)

// RunStatusEvent is broadcast on every agent run lifecycle transition.
type RunStatusEvent struct {
	ProjectID string          `json:"project_id"`
	RunID     int64           `json:"run_id,omitempty"`
	Status    agentrun.Status `json:"status"`
	Message   string          `json:"message,omitempty"`
}

// RunHistoryEvent is broadcast when an entry is appended to a run's
// conversation history.
type RunHistoryEvent struct {
	ProjectID string                `json:"project_id"`
	RunID     int64                 `json:"run_id,omitempty"`
	Entry     agentrun.HistoryEntry `json:"entry"`
}

// ValidationEvent is broadcast on each PR validation stage transition.
type ValidationEvent struct {
	ProjectID string `json:"project_id"`
	PRID      int64  `json:"pr_id"`
	Stage     string `json:"stage"`
	Passed    bool   `json:"passed"`
	Output    string `json:"output,omitempty"`
}

// ProjectEvent is broadcast when a project is created, updated or deleted.
type ProjectEvent struct {
	ProjectID string `json:"project_id"`
	Action    string `json:"action"` // "created" | "updated" | "deleted"
}
