package agentrun

import "strings"

// RemoteStatus is the raw status field reported by the remote agent API.
type RemoteStatus string

const (
	RemotePending   RemoteStatus = "pending"
	RemoteRunning   RemoteStatus = "running"
	RemoteActive    RemoteStatus = "active"
	RemoteCompleted RemoteStatus = "completed"
	RemoteFailed    RemoteStatus = "failed"
	RemoteCancelled RemoteStatus = "cancelled"
	RemotePaused    RemoteStatus = "paused"
)

// Normalize lower-cases the status for comparison; the remote service is not
// consistent about casing.
func (s RemoteStatus) Normalize() RemoteStatus {
	return RemoteStatus(strings.ToLower(string(s)))
}

// Terminal reports whether no further remote-side progress is expected and
// polling should stop. Paused is included: a paused run only moves again
// after an explicit resume, so polling through a pause would just burn the
// timeout budget.
func (s RemoteStatus) Terminal() bool {
	switch s.Normalize() {
	case RemoteCompleted, RemoteFailed, RemoteCancelled, RemotePaused:
		return true
	}
	return false
}

// PullRequest is a pull request the remote agent opened for a run.
type PullRequest struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// RunRecord is the raw remote run record returned by the agent API.
type RunRecord struct {
	ID           int64         `json:"id"`
	Status       RemoteStatus  `json:"status"`
	Result       string        `json:"result,omitempty"`
	PullRequests []PullRequest `json:"pullRequests,omitempty"`
}
