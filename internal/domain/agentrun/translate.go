package agentrun

import "fmt"

// Fallback messages used when the remote record carries no result text.
const (
	msgFailedFallback   = "Agent run failed without a message."
	msgPausedFallback   = "Agent is paused and awaiting input."
	msgCompleteFallback = "Agent run complete."
	msgWorking          = "Agent is actively working..."
)

// Translate maps a raw remote run record to a local AgentRun, appending one
// history entry describing the observation. It is a pure mapping evaluated in
// strict priority order, first match wins:
//
//  1. failed/cancelled        -> ERROR
//  2. any pull request opened -> PR_CREATED (overrides paused/completed)
//  3. paused                  -> RESPONSE_DEFAULT
//  4. completed               -> IDLE (callers stop polling)
//  5. anything else           -> RUNNING
//
// A created PR deliberately overrides a "paused" or "completed" raw status;
// explicit failure overrides PR presence.
func Translate(rec RunRecord, prior []HistoryEntry) AgentRun {
	status := rec.Status.Normalize()

	switch {
	case status == RemoteFailed || status == RemoteCancelled:
		msg := rec.Result
		if msg == "" {
			msg = msgFailedFallback
		}
		return AgentRun{
			RunID:   rec.ID,
			Status:  StatusError,
			History: AppendEntry(prior, EntryError, msg),
		}

	case len(rec.PullRequests) > 0:
		pr := rec.PullRequests[0]
		msg := fmt.Sprintf("Pull request #%d created: %s", pr.ID, pr.Title)
		return AgentRun{
			RunID:   rec.ID,
			Status:  StatusPRCreated,
			History: AppendEntry(prior, EntryResponse, msg),
		}

	case status == RemotePaused:
		msg := rec.Result
		if msg == "" {
			msg = msgPausedFallback
		}
		return AgentRun{
			RunID:   rec.ID,
			Status:  StatusResponseDefault,
			History: AppendEntry(prior, EntryResponse, msg),
		}

	case status == RemoteCompleted:
		msg := rec.Result
		if msg == "" {
			msg = msgCompleteFallback
		}
		return AgentRun{
			RunID:   rec.ID,
			Status:  StatusIdle,
			History: AppendEntry(prior, EntryResponse, msg),
		}

	default: // pending / running / active / unknown
		return AgentRun{
			RunID:   rec.ID,
			Status:  StatusRunning,
			History: AppendEntry(prior, EntryStatus, msgWorking),
		}
	}
}

// ErrorRun converts a failure into a terminal ERROR AgentRun, preserving the
// run ID and prior history. This is the shape every failure path of the
// lifecycle service produces.
func ErrorRun(runID int64, prior []HistoryEntry, msg string) AgentRun {
	return AgentRun{
		RunID:   runID,
		Status:  StatusError,
		History: AppendEntry(prior, EntryError, msg),
	}
}
