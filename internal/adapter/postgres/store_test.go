package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

// testStore connects to PostgreSQL or skips the test if DATABASE_URL is not
// set. Migrations are applied on first use.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func TestStore_SaveRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	p := project.New(id, project.CreateRequest{
		Name:    "roundtrip",
		RepoURL: "https://github.com/acme/roundtrip",
		Rules:   []string{"run gofmt", "keep PRs small"},
	}, time.Now().UTC())
	p.AgentRun.RunID = 77
	p.AgentRun.Status = agentrun.StatusRunning
	p.AgentRun.History = agentrun.AppendEntry(p.AgentRun.History, agentrun.EntryPrompt, "add dark mode")
	p.AgentRun.CurrentPlan = &agentrun.Plan{Title: "Dark mode", Steps: []string{"add toggle", "persist choice"}}

	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteProject(ctx, id) })

	got, err := s.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "roundtrip" || len(got.Rules) != 2 {
		t.Errorf("got %+v", got)
	}
	if got.AgentRun.RunID != 77 || got.AgentRun.Status != agentrun.StatusRunning {
		t.Errorf("agent run = %+v", got.AgentRun)
	}
	if len(got.AgentRun.History) != 1 || got.AgentRun.History[0].Content != "add dark mode" {
		t.Errorf("history = %+v", got.AgentRun.History)
	}
	if got.AgentRun.CurrentPlan == nil || len(got.AgentRun.CurrentPlan.Steps) != 2 {
		t.Errorf("plan = %+v", got.AgentRun.CurrentPlan)
	}
}

func TestStore_SaveIsUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	p := project.New(id, project.CreateRequest{
		Name:    "before",
		RepoURL: "https://github.com/acme/upsert",
	}, time.Now().UTC())

	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("first save: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteProject(ctx, id) })

	p.Name = "after"
	p.UpdatedAt = time.Now().UTC()
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "after" {
		t.Errorf("name = %q, want after", got.Name)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)

	_, err := s.GetProject(context.Background(), uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
