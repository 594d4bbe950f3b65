// Package agentrun defines the AgentRun domain entity: the local, UI-facing
// record of one remote agent execution, its lifecycle state, and its
// append-only history.
package agentrun

import "time"

// Status is the local lifecycle state of an agent run.
type Status string

const (
	StatusIdle            Status = "IDLE"             // quiescent, no remote work in flight
	StatusRunning         Status = "RUNNING"          // polling active
	StatusPlanProposed    Status = "PLAN_PROPOSED"    // awaiting user decision on a plan
	StatusResponseDefault Status = "RESPONSE_DEFAULT" // awaiting free-text input
	StatusPRCreated       Status = "PR_CREATED"       // absorbing success
	StatusValidatingPR    Status = "VALIDATING_PR"    // PR validation sub-workflow in progress
	StatusError           Status = "ERROR"            // absorbing failure
)

// EntryType tags a history entry.
type EntryType string

const (
	EntryPrompt   EntryType = "prompt"
	EntryStatus   EntryType = "status"
	EntryResponse EntryType = "response"
	EntryError    EntryType = "error"
)

// HistoryEntry is one immutable, timestamped log line in an AgentRun's record.
type HistoryEntry struct {
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is a structured, stepped proposal the remote agent emits for user
// approval before executing ambiguous or destructive changes.
type Plan struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

// AgentRun is the local record of a remote agent execution. RunID is the
// remote run identifier; 0 means no run has been created yet. History is
// append-only and strictly time-ordered.
type AgentRun struct {
	RunID       int64          `json:"run_id,omitempty"`
	Status      Status         `json:"status"`
	History     []HistoryEntry `json:"history"`
	CurrentPlan *Plan          `json:"current_plan,omitempty"`
}

// New returns the initial quiescent AgentRun every project starts with.
func New() AgentRun {
	return AgentRun{Status: StatusIdle, History: []HistoryEntry{}}
}

// HasActiveRun reports whether a remote run ID has been recorded.
func (r AgentRun) HasActiveRun() bool {
	return r.RunID != 0
}

// LastEntry returns the most recent history entry, or nil for empty history.
func (r AgentRun) LastEntry() *HistoryEntry {
	if len(r.History) == 0 {
		return nil
	}
	return &r.History[len(r.History)-1]
}

// AppendEntry returns a new history slice with an entry appended. The prior
// slice is copied, never mutated, so histories held by earlier AgentRun
// values stay intact.
func AppendEntry(prior []HistoryEntry, typ EntryType, content string) []HistoryEntry {
	out := make([]HistoryEntry, len(prior), len(prior)+1)
	copy(out, prior)
	return append(out, HistoryEntry{
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}
