package http

import (
	"net/http"

	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/domain/project"
	"github.com/agentdeck/agentdeck/internal/remote"
	"github.com/agentdeck/agentdeck/internal/service"
)

// Handlers bundles the services behind the HTTP API.
//
// Run operations surface synchronous failures twice: the lifecycle service
// folds the failure into the project's stored AgentRun (so the dashboard
// shows ERROR), and the handler still maps the error to a status code so the
// caller can tell bad input (4xx) from an upstream failure (502/504).
// Background poll failures only take the stored-run path.
type Handlers struct {
	projects   *service.ProjectService
	runs       *service.LifecycleService
	validation *service.ValidationService
	registry   *remote.Registry
	hub        *ws.Hub
}

// NewHandlers wires services into HTTP handlers.
func NewHandlers(projects *service.ProjectService, runs *service.LifecycleService, validation *service.ValidationService, registry *remote.Registry, hub *ws.Hub) *Handlers {
	return &Handlers{
		projects:   projects,
		runs:       runs,
		validation: validation,
		registry:   registry,
		hub:        hub,
	}
}

// Health reports liveness and the number of connected dashboard clients.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"websocket_clients": h.hub.ConnectionCount(),
	})
}

// ListProjects returns all projects, newest first.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// CreateProject registers a new repository under agent management.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}

	p, err := h.projects.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject returns one project with its embedded run.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject removes a project and its run state.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRulesRequest struct {
	Rules []string `json:"rules"`
}

// UpdateRules replaces a project's standing rules.
func (h *Handlers) UpdateRules(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateRulesRequest](w, r)
	if !ok {
		return
	}

	p, err := h.projects.UpdateRules(r.Context(), urlParam(r, "id"), req.Rules)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// StartRun launches a remote agent run for the project.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[promptRequest](w, r)
	if !ok {
		return
	}

	p, err := h.runs.StartRun(r.Context(), urlParam(r, "id"), req.Prompt)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

// ContinueRun resumes a paused run with a follow-up prompt.
func (h *Handlers) ContinueRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[promptRequest](w, r)
	if !ok {
		return
	}

	p, err := h.runs.ContinueRun(r.Context(), urlParam(r, "id"), req.Prompt)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

// ConfirmPlan approves the proposed plan.
func (h *Handlers) ConfirmPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.runs.ConfirmPlan(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

type modifyPlanRequest struct {
	Feedback string `json:"feedback"`
}

// ModifyPlan sends plan feedback so the agent revises its proposal.
func (h *Handlers) ModifyPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[modifyPlanRequest](w, r)
	if !ok {
		return
	}

	p, err := h.runs.ModifyPlan(r.Context(), urlParam(r, "id"), req.Feedback)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

// RunLogs proxies a page of run logs for the project's active run.
// Query parameters: skip (default 0), limit (default 100).
func (h *Handlers) RunLogs(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)

	page, err := h.runs.Logs(r.Context(), urlParam(r, "id"), skip, limit)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type validatePRRequest struct {
	PRID    int64  `json:"prId"`
	PRTitle string `json:"prTitle"`
}

// ValidatePR runs the validation pipeline against the run's pull request.
func (h *Handlers) ValidatePR(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[validatePRRequest](w, r)
	if !ok {
		return
	}
	if req.PRID <= 0 {
		writeError(w, http.StatusBadRequest, "prId is required")
		return
	}

	report, err := h.validation.ValidatePR(r.Context(), urlParam(r, "id"), req.PRID, req.PRTitle)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RemoteMetrics returns the recent request samples of the default remote
// client: per-attempt latency, status, and cache hits.
func (h *Handlers) RemoteMetrics(w http.ResponseWriter, r *http.Request) {
	client, err := h.registry.Default()
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": client.Metrics().Samples(),
	})
}
