package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/adapter/memstore"
	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
	"github.com/agentdeck/agentdeck/internal/port/validator"
	"github.com/agentdeck/agentdeck/internal/remote"
	"github.com/agentdeck/agentdeck/internal/service"
)

// passBackend passes every validation stage.
type passBackend struct{}

func (passBackend) RunStage(_ context.Context, stage validator.Stage, _ validator.Request) (validator.StageResult, error) {
	return validator.StageResult{Stage: stage, Passed: true, Output: "ok"}, nil
}

type apiHarness struct {
	srv  *httptest.Server
	ms   *memstore.Store
	runs *service.LifecycleService
}

func newAPIHarness(t *testing.T, remoteHandler http.HandlerFunc) *apiHarness {
	t.Helper()

	if remoteHandler == nil {
		remoteHandler = func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected remote call %s %s", r.Method, r.URL.Path)
		}
	}
	remoteSrv := httptest.NewServer(remoteHandler)
	t.Cleanup(remoteSrv.Close)

	cfg := config.Remote{
		BaseURL:            remoteSrv.URL,
		OrgID:              "org-1",
		APIToken:           "tok-1",
		Timeout:            2 * time.Second,
		MaxRetries:         1,
		RetryDelay:         time.Millisecond,
		RetryBackoffFactor: 2.0,
		PollInterval:       time.Millisecond,
		PollTimeout:        2 * time.Second,
		RateLimitRequests:  10_000,
		RateLimitPeriod:    time.Minute,
	}

	ms := memstore.New()
	hub := ws.NewHub()
	reg := remote.NewRegistry(cfg, config.Breaker{}, nil)
	agentCfg := config.Agent{MaxPromptLen: 100_000}

	projects := service.NewProjectService(ms, hub)
	runs := service.NewLifecycleService(ms, reg, hub, nil, nil, agentCfg)
	validation := service.NewValidationService(ms, passBackend{}, hub, nil, nil)

	h := NewHandlers(projects, runs, validation, reg, hub)
	srv := httptest.NewServer(NewRouter(h, config.Server{CORSOrigin: "*"}))
	t.Cleanup(srv.Close)

	return &apiHarness{srv: srv, ms: ms, runs: runs}
}

func (a *apiHarness) request(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, data
}

func seedStoredProject(t *testing.T, a *apiHarness, status agentrun.Status, runID int64) *project.Project {
	t.Helper()

	p := project.New("p1", project.CreateRequest{
		Name:    "demo",
		RepoURL: "https://github.com/acme/demo",
	}, time.Now().UTC())
	p.AgentRun.Status = status
	p.AgentRun.RunID = runID
	if err := a.ms.SaveProject(context.Background(), p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func TestProjects_CRUD(t *testing.T) {
	a := newAPIHarness(t, nil)

	resp, body := a.request(t, http.MethodPost, "/api/v1/projects",
		`{"name":"demo","repo_url":"https://github.com/acme/demo","rules":["keep PRs small"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var created project.Project
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created project: %v", err)
	}
	if created.ID == "" {
		t.Error("created project has no id")
	}
	if created.AgentRun.Status != agentrun.StatusIdle {
		t.Errorf("new run status = %q, want IDLE", created.AgentRun.Status)
	}

	resp, body = a.request(t, http.MethodGet, "/api/v1/projects", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var listed []project.Project
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d projects, want 1", len(listed))
	}

	resp, _ = a.request(t, http.MethodPut, "/api/v1/projects/"+created.ID+"/rules",
		`{"rules":["write tests"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update rules status = %d", resp.StatusCode)
	}

	resp, body = a.request(t, http.MethodGet, "/api/v1/projects/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got project.Project
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if len(got.Rules) != 1 || got.Rules[0] != "write tests" {
		t.Errorf("rules = %v", got.Rules)
	}

	resp, _ = a.request(t, http.MethodDelete, "/api/v1/projects/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = a.request(t, http.MethodGet, "/api/v1/projects/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateProject_ValidationErrors(t *testing.T) {
	a := newAPIHarness(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing name", `{"repo_url":"https://x"}`, http.StatusBadRequest},
		{"missing repo", `{"name":"x"}`, http.StatusBadRequest},
		{"bad scheme", `{"name":"x","repo_url":"ftp://x"}`, http.StatusBadRequest},
		{"broken json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := a.request(t, http.MethodPost, "/api/v1/projects", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestStartRun_AcceptedThenCompletes(t *testing.T) {
	a := newAPIHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/agent/run"):
			_ = json.NewEncoder(w).Encode(agentrun.RunRecord{ID: 7, Status: "running"})
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(agentrun.RunRecord{ID: 7, Status: "completed", Result: "Done."})
		default:
			t.Errorf("unexpected remote call %s %s", r.Method, r.URL.Path)
		}
	})
	seedStoredProject(t, a, agentrun.StatusIdle, 0)

	resp, body := a.request(t, http.MethodPost, "/api/v1/projects/p1/run/start",
		`{"prompt":"add dark mode"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, body %s", resp.StatusCode, body)
	}
	var p project.Project
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if p.AgentRun.Status != agentrun.StatusRunning || p.AgentRun.RunID != 7 {
		t.Errorf("run = %+v, want RUNNING id 7", p.AgentRun)
	}

	a.runs.Wait()

	resp, body = a.request(t, http.MethodGet, "/api/v1/projects/p1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if p.AgentRun.Status != agentrun.StatusIdle {
		t.Errorf("terminal status = %q, want IDLE", p.AgentRun.Status)
	}
}

func TestStartRun_Guards(t *testing.T) {
	a := newAPIHarness(t, nil)
	seedStoredProject(t, a, agentrun.StatusRunning, 5)

	resp, _ := a.request(t, http.MethodPost, "/api/v1/projects/p1/run/start",
		`{"prompt":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty prompt status = %d, want 400", resp.StatusCode)
	}

	resp, _ = a.request(t, http.MethodPost, "/api/v1/projects/p1/run/start",
		`{"prompt":"x"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("start while running = %d, want 409", resp.StatusCode)
	}

	resp, _ = a.request(t, http.MethodPost, "/api/v1/projects/missing/run/start",
		`{"prompt":"x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing project = %d, want 404", resp.StatusCode)
	}
}

func TestRunLogs_NoActiveRunIsConflict(t *testing.T) {
	a := newAPIHarness(t, nil)
	seedStoredProject(t, a, agentrun.StatusIdle, 0)

	resp, _ := a.request(t, http.MethodGet, "/api/v1/projects/p1/run/logs", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("logs without run = %d, want 409", resp.StatusCode)
	}
}

func TestRunLogs_ProxiesPage(t *testing.T) {
	a := newAPIHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") != "5" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"logs":[{"message":"cloning"},{"message":"building"}],"status":"running","total":40}`))
	})
	seedStoredProject(t, a, agentrun.StatusRunning, 7)

	resp, body := a.request(t, http.MethodGet, "/api/v1/projects/p1/run/logs?skip=5&limit=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs status = %d, body %s", resp.StatusCode, body)
	}
	var page remote.LogsPage
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Logs) != 2 || page.Total != 40 {
		t.Errorf("page = %+v", page)
	}
}

func TestValidatePR_Endpoint(t *testing.T) {
	a := newAPIHarness(t, nil)
	seedStoredProject(t, a, agentrun.StatusPRCreated, 7)

	resp, body := a.request(t, http.MethodPost, "/api/v1/projects/p1/validate-pr",
		`{"prId":9,"prTitle":"Add dark mode"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate status = %d, body %s", resp.StatusCode, body)
	}
	var report service.ValidationReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Passed {
		t.Error("report.Passed = false, want true")
	}

	resp, _ = a.request(t, http.MethodPost, "/api/v1/projects/p1/validate-pr",
		`{"prTitle":"no id"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing prId = %d, want 400", resp.StatusCode)
	}
}

func TestValidatePR_RequiresCreatedPR(t *testing.T) {
	a := newAPIHarness(t, nil)
	seedStoredProject(t, a, agentrun.StatusIdle, 0)

	resp, _ := a.request(t, http.MethodPost, "/api/v1/projects/p1/validate-pr",
		`{"prId":9}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("validate without PR = %d, want 409", resp.StatusCode)
	}
}

func TestHealthAndRemoteMetrics(t *testing.T) {
	a := newAPIHarness(t, nil)

	resp, body := a.request(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("health body = %s", body)
	}

	resp, body = a.request(t, http.MethodGet, "/api/v1/metrics/remote", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		Samples []remote.Sample `json:"samples"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
}
