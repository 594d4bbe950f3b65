package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
)

// RunResult is the outcome of a completed polling loop.
type RunResult struct {
	Run     *agentrun.RunRecord
	Elapsed time.Duration
}

// WaitForCompletion polls the run on a fixed cadence until it reaches a
// terminal status or the bound expires. At most one polling loop may be
// active per run id on a client; a concurrent call fails with ErrPollInFlight.
//
// A zero interval or timeout falls back to the configured defaults. The
// timeout is checked before each status fetch, so the call fails at or after
// the bound, never before.
func (c *Client) WaitForCompletion(ctx context.Context, runID int64, interval, timeout time.Duration) (rec *RunResult, err error) {
	if runID == 0 {
		return nil, &ValidationError{Msg: "run id is required"}
	}
	if !c.claimPoll(runID) {
		return nil, &ErrPollInFlight{RunID: runID}
	}
	defer c.releasePoll(runID)

	if interval <= 0 {
		interval = c.cfg.PollInterval
	}
	if timeout <= 0 {
		timeout = c.cfg.PollTimeout
	}

	slog.Debug("polling run until terminal",
		"run_id", runID, "interval", interval, "timeout", timeout)

	start := time.Now()
	for {
		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
		if elapsed := time.Since(start); elapsed >= timeout {
			return nil, &TimeoutError{RunID: runID, Bound: timeout}
		}

		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("poll run %d: %w", runID, err)
		}
		if run.Status.Terminal() {
			return &RunResult{Run: run, Elapsed: time.Since(start)}, nil
		}
	}
}

func (c *Client) claimPoll(runID int64) bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if _, busy := c.polls[runID]; busy {
		return false
	}
	c.polls[runID] = struct{}{}
	return true
}

func (c *Client) releasePoll(runID int64) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	delete(c.polls, runID)
}
