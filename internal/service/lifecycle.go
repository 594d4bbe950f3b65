package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	adotel "github.com/agentdeck/agentdeck/internal/adapter/otel"
	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
	"github.com/agentdeck/agentdeck/internal/logger"
	"github.com/agentdeck/agentdeck/internal/port/broadcast"
	"github.com/agentdeck/agentdeck/internal/port/messagequeue"
	"github.com/agentdeck/agentdeck/internal/port/store"
	"github.com/agentdeck/agentdeck/internal/remote"
)

// Prompts sent to the remote agent on plan approval and revision. The agent
// keys its behavior off these exact strings; do not reword them.
const (
	confirmPrompt    = "Proceed with the plan."
	modifyPlanPrefix = "User modified the plan. New instructions:\n"
)

// LifecycleService drives agent runs: it composes prompts, talks to the
// remote service through the client registry, polls runs to completion in
// the background, and translates every outcome into the project's stored
// AgentRun. All failure paths collapse into a terminal ERROR run; errors
// never escape into the UI as raw failures.
type LifecycleService struct {
	store    store.Store
	registry *remote.Registry
	hub      broadcast.Broadcaster
	queue    messagequeue.Queue // nil when NATS is not configured
	metrics  *adotel.Metrics    // nil when telemetry is disabled
	agentCfg config.Agent

	// pollWG tracks background polling goroutines so tests and shutdown can
	// wait for them.
	pollWG sync.WaitGroup
}

// NewLifecycleService creates the run lifecycle controller. queue and
// metrics are optional.
func NewLifecycleService(s store.Store, reg *remote.Registry, hub broadcast.Broadcaster, queue messagequeue.Queue, metrics *adotel.Metrics, agentCfg config.Agent) *LifecycleService {
	return &LifecycleService{
		store:    s,
		registry: reg,
		hub:      hub,
		queue:    queue,
		metrics:  metrics,
		agentCfg: agentCfg,
	}
}

// StartRun creates a remote run for the project and begins polling it in the
// background. The returned project reflects the RUNNING state; the terminal
// state arrives later through the store and the broadcast events.
func (s *LifecycleService) StartRun(ctx context.Context, projectID, prompt string) (*project.Project, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &remote.ValidationError{Msg: "prompt must not be empty"}
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.AgentRun.Status == agentrun.StatusRunning || p.AgentRun.Status == agentrun.StatusValidatingPR {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrConflict)
	}

	composed, err := s.composePrompt(p, prompt)
	if err != nil {
		return nil, err
	}

	client, err := s.registry.Default()
	if err != nil {
		return nil, err
	}
	ctx = logger.WithOrgID(ctx, client.OrgID())

	spanCtx, span := adotel.StartRunSpan(ctx, "run.start", projectID, 0)
	rec, err := client.CreateRun(spanCtx, composed, map[string]string{"projectId": projectID})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, s.failRun(ctx, p, 0, prompt, err)
	}
	span.SetAttributes(attribute.Int64("run.id", rec.ID))
	span.End()

	history := agentrun.AppendEntry(p.AgentRun.History, agentrun.EntryPrompt, prompt)
	p.AgentRun = agentrun.AgentRun{
		RunID:   rec.ID,
		Status:  agentrun.StatusRunning,
		History: agentrun.AppendEntry(history, agentrun.EntryStatus, "Agent run started."),
	}
	if err := s.saveAndAnnounce(ctx, p); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RunsStarted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("project.id", projectID)))
	}
	s.publishJSON(ctx, messagequeue.SubjectRunStarted, runEventPayload{
		ProjectID: projectID, RunID: rec.ID,
	})

	s.pollInBackground(client, p.ID, rec.ID)
	return p, nil
}

// ContinueRun resumes a paused run with a follow-up prompt and polls again.
func (s *LifecycleService) ContinueRun(ctx context.Context, projectID, prompt string) (*project.Project, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &remote.ValidationError{Msg: "prompt must not be empty"}
	}
	return s.resume(ctx, projectID, prompt, prompt,
		agentrun.StatusResponseDefault, agentrun.StatusPlanProposed)
}

// ConfirmPlan approves the currently proposed plan and lets the agent
// proceed.
func (s *LifecycleService) ConfirmPlan(ctx context.Context, projectID string) (*project.Project, error) {
	return s.resume(ctx, projectID, confirmPrompt, "Plan approved.",
		agentrun.StatusPlanProposed)
}

// ModifyPlan rejects the proposed plan with feedback; the agent revises and
// proposes again.
func (s *LifecycleService) ModifyPlan(ctx context.Context, projectID, feedback string) (*project.Project, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, &remote.ValidationError{Msg: "plan feedback must not be empty"}
	}
	return s.resume(ctx, projectID, modifyPlanPrefix+feedback, "Plan feedback: "+feedback,
		agentrun.StatusPlanProposed)
}

// Logs proxies a page of run logs for the project's active run.
func (s *LifecycleService) Logs(ctx context.Context, projectID string, skip, limit int) (*remote.LogsPage, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.AgentRun.HasActiveRun() {
		return nil, domain.ErrNoActiveRun
	}

	client, err := s.registry.Default()
	if err != nil {
		return nil, err
	}
	return client.GetLogs(ctx, p.AgentRun.RunID, skip, limit)
}

// Wait blocks until all background polling goroutines have finished. Used
// on shutdown and by tests.
func (s *LifecycleService) Wait() {
	s.pollWG.Wait()
}

// resume sends a prompt to the existing remote run. allowed lists the local
// states the run must currently be in.
func (s *LifecycleService) resume(ctx context.Context, projectID, remotePrompt, historyEntry string, allowed ...agentrun.Status) (*project.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.AgentRun.HasActiveRun() {
		return nil, domain.ErrNoActiveRun
	}
	if !statusIn(p.AgentRun.Status, allowed) {
		return nil, fmt.Errorf("run is %s, not awaiting input: %w", p.AgentRun.Status, domain.ErrConflict)
	}

	client, err := s.registry.Default()
	if err != nil {
		return nil, err
	}
	ctx = logger.WithOrgID(ctx, client.OrgID())

	runID := p.AgentRun.RunID
	spanCtx, span := adotel.StartRunSpan(ctx, "run.resume", projectID, runID)
	rec, err := client.ResumeRun(spanCtx, runID, remotePrompt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, s.failRun(ctx, p, runID, historyEntry, err)
	}
	span.End()

	history := agentrun.AppendEntry(p.AgentRun.History, agentrun.EntryPrompt, historyEntry)
	p.AgentRun = agentrun.AgentRun{
		RunID:   rec.ID,
		Status:  agentrun.StatusRunning,
		History: history,
	}
	if err := s.saveAndAnnounce(ctx, p); err != nil {
		return nil, err
	}

	s.pollInBackground(client, p.ID, rec.ID)
	return p, nil
}

// pollInBackground waits for the run to reach a terminal remote status and
// folds the outcome into the stored project.
func (s *LifecycleService) pollInBackground(client *remote.Client, projectID string, runID int64) {
	s.pollWG.Add(1)
	go func() {
		defer s.pollWG.Done()

		// Detached from the request context: the run outlives the HTTP call
		// that started it. Only the org annotation carries over.
		ctx := logger.WithOrgID(context.Background(), client.OrgID())
		start := time.Now()

		res, err := client.WaitForCompletion(ctx, runID, 0, 0)

		p, getErr := s.store.GetProject(ctx, projectID)
		if getErr != nil {
			slog.Error("poll finished but project lookup failed",
				"project_id", projectID, "run_id", runID, "error", getErr)
			return
		}
		// The run we polled may have been superseded meanwhile.
		if p.AgentRun.RunID != runID {
			slog.Debug("discarding stale poll result",
				"project_id", projectID, "run_id", runID, "current_run_id", p.AgentRun.RunID)
			return
		}

		if err != nil {
			if saveErr := s.failRun(ctx, p, runID, "", err); saveErr != nil && saveErr != err {
				slog.Error("failed to record run failure", "project_id", projectID, "error", saveErr)
			}
			return
		}

		run := agentrun.WithPlanDetection(agentrun.Translate(*res.Run, p.AgentRun.History))
		p.AgentRun = run
		if saveErr := s.saveAndAnnounce(ctx, p); saveErr != nil {
			slog.Error("failed to save run outcome", "project_id", projectID, "error", saveErr)
			return
		}

		s.recordOutcome(ctx, projectID, runID, run, time.Since(start))
	}()
}

// failRun records any lifecycle failure as a terminal ERROR run and returns
// the original error for the synchronous caller.
func (s *LifecycleService) failRun(ctx context.Context, p *project.Project, runID int64, prompt string, cause error) error {
	history := p.AgentRun.History
	if prompt != "" {
		history = agentrun.AppendEntry(history, agentrun.EntryPrompt, prompt)
	}
	p.AgentRun = agentrun.ErrorRun(runID, history, cause.Error())

	if saveErr := s.saveAndAnnounce(ctx, p); saveErr != nil {
		slog.Error("failed to persist error state",
			"project_id", p.ID, "org_id", logger.OrgID(ctx), "error", saveErr, "cause", cause)
	}

	if s.metrics != nil {
		s.metrics.RunsFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("project.id", p.ID)))
	}
	s.publishJSON(ctx, messagequeue.SubjectRunFailed, runEventPayload{
		ProjectID: p.ID, RunID: runID, Message: cause.Error(),
	})

	return cause
}

// recordOutcome emits metrics, queue events and log lines for a terminal
// run state.
func (s *LifecycleService) recordOutcome(ctx context.Context, projectID string, runID int64, run agentrun.AgentRun, elapsed time.Duration) {
	slog.Info("agent run reached terminal state",
		"project_id", projectID, "run_id", runID, "org_id", logger.OrgID(ctx),
		"status", run.Status, "elapsed", elapsed)

	attrs := metric.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("status", string(run.Status)))

	switch run.Status {
	case agentrun.StatusError:
		if s.metrics != nil {
			s.metrics.RunsFailed.Add(ctx, 1, attrs)
		}
		s.publishJSON(ctx, messagequeue.SubjectRunFailed, runEventPayload{
			ProjectID: projectID, RunID: runID, Status: string(run.Status),
		})
	default:
		if s.metrics != nil {
			s.metrics.RunsCompleted.Add(ctx, 1, attrs)
			s.metrics.RunDuration.Record(ctx, elapsed.Seconds(), attrs)
		}
		s.publishJSON(ctx, messagequeue.SubjectRunCompleted, runEventPayload{
			ProjectID: projectID, RunID: runID, Status: string(run.Status),
		})
	}
}

// saveAndAnnounce persists the project and pushes status and history frames
// to connected clients.
func (s *LifecycleService) saveAndAnnounce(ctx context.Context, p *project.Project) error {
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveProject(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}

	run := p.AgentRun
	var msg string
	if last := run.LastEntry(); last != nil {
		msg = last.Content
	}
	s.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
		ProjectID: p.ID, RunID: run.RunID, Status: run.Status, Message: msg,
	})
	if last := run.LastEntry(); last != nil {
		s.hub.BroadcastEvent(ctx, ws.EventRunHistory, ws.RunHistoryEvent{
			ProjectID: p.ID, RunID: run.RunID, Entry: *last,
		})
	}
	s.publishJSON(ctx, messagequeue.SubjectRunStatus, runEventPayload{
		ProjectID: p.ID, RunID: run.RunID, Status: string(run.Status),
	})
	return nil
}

// composePrompt folds the planning statement, the project's standing rules
// and the target repository into the user's prompt.
func (s *LifecycleService) composePrompt(p *project.Project, prompt string) (string, error) {
	var b strings.Builder
	if s.agentCfg.PlanningStatement != "" {
		b.WriteString(s.agentCfg.PlanningStatement)
		b.WriteString("\n\n")
	}
	if len(p.Rules) > 0 {
		b.WriteString("Project rules:\n")
		for _, r := range p.Rules {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Target repository: %s\n\n", p.RepoURL)
	b.WriteString(prompt)

	composed := b.String()
	if s.agentCfg.MaxPromptLen > 0 && len(composed) > s.agentCfg.MaxPromptLen {
		return "", &remote.ValidationError{
			Msg: fmt.Sprintf("composed prompt is %d chars, limit %d", len(composed), s.agentCfg.MaxPromptLen),
		}
	}
	return composed, nil
}

// publishJSON publishes an event to the queue if one is configured. Queue
// failures are logged, never propagated; event delivery is best-effort.
func (s *LifecycleService) publishJSON(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("queue publish failed", "subject", subject, "error", err)
	}
}

// runEventPayload is the queue message body for run lifecycle subjects.
type runEventPayload struct {
	ProjectID string `json:"projectId"`
	RunID     int64  `json:"runId,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

func statusIn(s agentrun.Status, set []agentrun.Status) bool {
	for _, a := range set {
		if s == a {
			return true
		}
	}
	return false
}
