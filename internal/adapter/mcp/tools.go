package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listProjectsTool(),
		s.getProjectTool(),
		s.getRunStatusTool(),
		s.startRunTool(),
		s.continueRunTool(),
		s.confirmPlanTool(),
	)
}

func (s *Server) listProjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_projects",
		mcplib.WithDescription("List all projects under agent management"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListProjects}
}

func (s *Server) getProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_project",
		mcplib.WithDescription("Get a project with its embedded agent run by ID"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetProject}
}

func (s *Server) getRunStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run_status",
		mcplib.WithDescription("Get the agent run status and history for a project"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose run to inspect"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetRunStatus}
}

func (s *Server) startRunTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("start_run",
		mcplib.WithDescription("Start a remote agent run against a project's repository"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project to run the agent against"),
		),
		mcplib.WithString("prompt",
			mcplib.Required(),
			mcplib.Description("The task for the agent"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleStartRun}
}

func (s *Server) continueRunTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("continue_run",
		mcplib.WithDescription("Send a follow-up prompt to a paused agent run"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose run to continue"),
		),
		mcplib.WithString("prompt",
			mcplib.Required(),
			mcplib.Description("The follow-up instruction"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleContinueRun}
}

func (s *Server) confirmPlanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("confirm_plan",
		mcplib.WithDescription("Approve the plan the agent proposed so it proceeds"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose proposed plan to approve"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleConfirmPlan}
}

func (s *Server) handleListProjects(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project service not configured"), nil
	}
	projects, err := s.deps.Projects.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list projects", err), nil
	}
	return marshalResult(projects)
}

func (s *Server) handleGetProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project service not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	p, err := s.deps.Projects.Get(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get project %s", projectID), err,
		), nil
	}
	return marshalResult(p)
}

func (s *Server) handleGetRunStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project service not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	p, err := s.deps.Projects.Get(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get project %s", projectID), err,
		), nil
	}
	return marshalResult(p.AgentRun)
}

func (s *Server) handleStartRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run controller not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	prompt, ok := stringArg(req, "prompt")
	if !ok {
		return mcplib.NewToolResultError("prompt is required"), nil
	}
	p, err := s.deps.Runs.StartRun(ctx, projectID, prompt)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start run", err), nil
	}
	return marshalResult(p.AgentRun)
}

func (s *Server) handleContinueRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run controller not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	prompt, ok := stringArg(req, "prompt")
	if !ok {
		return mcplib.NewToolResultError("prompt is required"), nil
	}
	p, err := s.deps.Runs.ContinueRun(ctx, projectID, prompt)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to continue run", err), nil
	}
	return marshalResult(p.AgentRun)
}

func (s *Server) handleConfirmPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run controller not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	p, err := s.deps.Runs.ConfirmPlan(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to confirm plan", err), nil
	}
	return marshalResult(p.AgentRun)
}

func stringArg(req mcplib.CallToolRequest, name string) (string, bool) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, ok := req.GetArguments()[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
