package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	adotel "github.com/agentdeck/agentdeck/internal/adapter/otel"
	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
	"github.com/agentdeck/agentdeck/internal/port/broadcast"
	"github.com/agentdeck/agentdeck/internal/port/messagequeue"
	"github.com/agentdeck/agentdeck/internal/port/store"
	"github.com/agentdeck/agentdeck/internal/port/validator"
)

// ValidationService runs the PR validation pipeline. The stage sequence is
// fixed; how stages execute is the backend's business. Teardown always runs,
// even after an earlier stage fails.
type ValidationService struct {
	store   store.Store
	backend validator.Backend
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue // optional
	metrics *adotel.Metrics    // optional
}

// ValidationReport is the outcome of one full pipeline pass.
type ValidationReport struct {
	ProjectID string                  `json:"projectId"`
	PRID      int64                   `json:"prId"`
	Passed    bool                    `json:"passed"`
	Stages    []validator.StageResult `json:"stages"`
	Elapsed   time.Duration           `json:"elapsed"`
}

// NewValidationService creates the PR validation runner.
func NewValidationService(s store.Store, backend validator.Backend, hub broadcast.Broadcaster, queue messagequeue.Queue, metrics *adotel.Metrics) *ValidationService {
	return &ValidationService{
		store:   s,
		backend: backend,
		hub:     hub,
		queue:   queue,
		metrics: metrics,
	}
}

// ValidatePR runs the full pipeline against the PR the project's run opened.
// The run moves to VALIDATING_PR for the duration and back to PR_CREATED
// afterwards, with the verdict appended to history.
func (s *ValidationService) ValidatePR(ctx context.Context, projectID string, prID int64, prTitle string) (*ValidationReport, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.AgentRun.Status != agentrun.StatusPRCreated {
		return nil, fmt.Errorf("run is %s, validation needs a created PR: %w", p.AgentRun.Status, domain.ErrConflict)
	}

	p.AgentRun.Status = agentrun.StatusValidatingPR
	p.AgentRun.History = agentrun.AppendEntry(p.AgentRun.History, agentrun.EntryStatus,
		fmt.Sprintf("Validating pull request #%d...", prID))
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}

	req := validator.Request{
		ProjectID: projectID,
		RepoURL:   p.RepoURL,
		PRID:      prID,
		PRTitle:   prTitle,
	}

	start := time.Now()
	report := &ValidationReport{ProjectID: projectID, PRID: prID, Passed: true}

	for _, stage := range validator.Stages() {
		// Teardown is cleanup and always runs; other stages are skipped once
		// the pipeline has failed.
		if !report.Passed && stage != validator.StageTeardown {
			continue
		}

		res, err := s.runStage(ctx, stage, req)
		if err != nil {
			// Infrastructure failure: the stage could not run at all.
			res = validator.StageResult{Stage: stage, Passed: false, Output: err.Error()}
		}
		report.Stages = append(report.Stages, res)

		// A failed teardown is logged but does not flip the verdict.
		if !res.Passed && stage != validator.StageTeardown {
			report.Passed = false
		}

		s.hub.BroadcastEvent(ctx, ws.EventValidation, ws.ValidationEvent{
			ProjectID: projectID, PRID: prID,
			Stage: string(res.Stage), Passed: res.Passed, Output: res.Output,
		})
	}
	report.Elapsed = time.Since(start)

	verdict := fmt.Sprintf("Pull request #%d passed validation.", prID)
	entryType := agentrun.EntryResponse
	if !report.Passed {
		verdict = fmt.Sprintf("Pull request #%d failed validation; see stage output.", prID)
		entryType = agentrun.EntryError
	}

	p, err = s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p.AgentRun.Status = agentrun.StatusPRCreated
	p.AgentRun.History = agentrun.AppendEntry(p.AgentRun.History, entryType, verdict)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("pr validation finished",
		"project_id", projectID, "pr_id", prID,
		"passed", report.Passed, "elapsed", report.Elapsed)

	return report, nil
}

func (s *ValidationService) runStage(ctx context.Context, stage validator.Stage, req validator.Request) (validator.StageResult, error) {
	stageCtx, span := adotel.StartValidationSpan(ctx, req.ProjectID, string(stage))
	defer span.End()

	res, err := s.backend.RunStage(stageCtx, stage, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	if s.metrics != nil {
		s.metrics.ValidationStages.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.Bool("passed", err == nil && res.Passed)))
	}
	return res, err
}

// save persists the project and pushes the status transition to clients.
func (s *ValidationService) save(ctx context.Context, p *project.Project) error {
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveProject(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}

	var msg string
	if last := p.AgentRun.LastEntry(); last != nil {
		msg = last.Content
	}
	s.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
		ProjectID: p.ID, RunID: p.AgentRun.RunID,
		Status: p.AgentRun.Status, Message: msg,
	})
	if s.queue != nil {
		payload, err := json.Marshal(runEventPayload{
			ProjectID: p.ID, RunID: p.AgentRun.RunID, Status: string(p.AgentRun.Status),
		})
		if err == nil {
			if pubErr := s.queue.Publish(ctx, messagequeue.SubjectValidation, payload); pubErr != nil {
				slog.Warn("queue publish failed", "subject", messagequeue.SubjectValidation, "error", pubErr)
			}
		}
	}
	return nil
}
