package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	admcp "github.com/agentdeck/agentdeck/internal/adapter/mcp"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

type mockProjects struct {
	projects []project.Project
}

func (m *mockProjects) List(_ context.Context) ([]project.Project, error) {
	return m.projects, nil
}

func (m *mockProjects) Get(_ context.Context, id string) (*project.Project, error) {
	for i := range m.projects {
		if m.projects[i].ID == id {
			return &m.projects[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type mockRuns struct {
	started map[string]string
	err     error
}

func (m *mockRuns) run(projectID string, status agentrun.Status) (*project.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	p := project.New(projectID, project.CreateRequest{
		Name: "demo", RepoURL: "https://github.com/acme/demo",
	}, time.Now().UTC())
	p.AgentRun.RunID = 7
	p.AgentRun.Status = status
	return p, nil
}

func (m *mockRuns) StartRun(_ context.Context, projectID, prompt string) (*project.Project, error) {
	if m.started == nil {
		m.started = make(map[string]string)
	}
	m.started[projectID] = prompt
	return m.run(projectID, agentrun.StatusRunning)
}

func (m *mockRuns) ContinueRun(_ context.Context, projectID, _ string) (*project.Project, error) {
	return m.run(projectID, agentrun.StatusRunning)
}

func (m *mockRuns) ConfirmPlan(_ context.Context, projectID string) (*project.Project, error) {
	return m.run(projectID, agentrun.StatusRunning)
}

func newServer(deps admcp.ServerDeps) *admcp.Server {
	return admcp.NewServer(config.MCP{Addr: ":0"}, deps)
}

func callTool(t *testing.T, s *admcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()

	tools := s.MCPServer().ListTools()
	tool, ok := tools[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func textOf(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

func TestToolRegistration(t *testing.T) {
	s := newServer(admcp.ServerDeps{})

	want := []string{
		"list_projects", "get_project", "get_run_status",
		"start_run", "continue_run", "confirm_plan",
	}
	tools := s.MCPServer().ListTools()
	if len(tools) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(want))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestListProjects(t *testing.T) {
	s := newServer(admcp.ServerDeps{
		Projects: &mockProjects{projects: []project.Project{
			{ID: "p1", Name: "Alpha"},
			{ID: "p2", Name: "Beta"},
		}},
	})

	result := callTool(t, s, "list_projects", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var projects []project.Project
	if err := json.Unmarshal([]byte(textOf(t, result)), &projects); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
}

func TestGetRunStatus(t *testing.T) {
	p := project.New("p1", project.CreateRequest{
		Name: "demo", RepoURL: "https://github.com/acme/demo",
	}, time.Now().UTC())
	p.AgentRun.RunID = 9
	p.AgentRun.Status = agentrun.StatusPlanProposed

	s := newServer(admcp.ServerDeps{
		Projects: &mockProjects{projects: []project.Project{*p}},
	})

	result := callTool(t, s, "get_run_status", map[string]any{"project_id": "p1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var run agentrun.AgentRun
	if err := json.Unmarshal([]byte(textOf(t, result)), &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.Status != agentrun.StatusPlanProposed || run.RunID != 9 {
		t.Errorf("run = %+v", run)
	}
}

func TestStartRun(t *testing.T) {
	runs := &mockRuns{}
	s := newServer(admcp.ServerDeps{Runs: runs})

	result := callTool(t, s, "start_run", map[string]any{
		"project_id": "p1",
		"prompt":     "add dark mode",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if runs.started["p1"] != "add dark mode" {
		t.Errorf("started = %v", runs.started)
	}
}

func TestStartRun_MissingArgs(t *testing.T) {
	s := newServer(admcp.ServerDeps{Runs: &mockRuns{}})

	if result := callTool(t, s, "start_run", nil); !result.IsError {
		t.Error("expected error result for missing args")
	}
	if result := callTool(t, s, "start_run", map[string]any{"project_id": "p1"}); !result.IsError {
		t.Error("expected error result for missing prompt")
	}
}

func TestStartRun_ServiceError(t *testing.T) {
	s := newServer(admcp.ServerDeps{Runs: &mockRuns{err: errors.New("remote down")}})

	result := callTool(t, s, "start_run", map[string]any{
		"project_id": "p1", "prompt": "x",
	})
	if !result.IsError {
		t.Error("expected error result when service fails")
	}
}

func TestNilDeps(t *testing.T) {
	s := newServer(admcp.ServerDeps{})

	for _, name := range []string{"list_projects", "start_run", "confirm_plan"} {
		args := map[string]any{"project_id": "p1", "prompt": "x"}
		if result := callTool(t, s, name, args); !result.IsError {
			t.Errorf("tool %q: expected error result with nil deps", name)
		}
	}
}

func TestStart_EnforcesAPIKeyOnServedPath(t *testing.T) {
	s := admcp.NewServer(config.MCP{
		Enabled: true,
		Addr:    "127.0.0.1:0",
		APIKey:  "secret",
	}, admcp.ServerDeps{Projects: &mockProjects{}})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`
	post := func(auth string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, "http://"+s.Addr()+"/mcp", strings.NewReader(initialize))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if got := post(""); got != http.StatusUnauthorized {
		t.Errorf("no auth header: status = %d, want 401", got)
	}
	if got := post("Bearer nope"); got != http.StatusForbidden {
		t.Errorf("wrong key: status = %d, want 403", got)
	}
	if got := post("Bearer secret"); got == http.StatusUnauthorized || got == http.StatusForbidden {
		t.Errorf("valid key: status = %d, must pass auth", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled when key empty", func(t *testing.T) {
		rec := httptest.NewRecorder()
		admcp.AuthMiddleware("", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		admcp.AuthMiddleware("secret", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		admcp.AuthMiddleware("secret", next).ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		admcp.AuthMiddleware("secret", next).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
