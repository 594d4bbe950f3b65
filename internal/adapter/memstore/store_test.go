package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

func testProject(id string, created time.Time) *project.Project {
	return project.New(id, project.CreateRequest{
		Name:    "proj-" + id,
		RepoURL: "https://github.com/acme/" + id,
		Rules:   []string{"use conventional commits"},
	}, created)
}

func TestStore_SaveGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	p := testProject("p1", now)
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "proj-p1" || got.RepoURL != "https://github.com/acme/p1" {
		t.Errorf("got %+v", got)
	}
	if got.AgentRun.Status != agentrun.StatusIdle {
		t.Errorf("new project run status = %q, want IDLE", got.AgentRun.Status)
	}

	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteProject(ctx, "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListOrdersNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveProject(ctx, testProject(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveProject %s: %v", id, err)
		}
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != "c" || list[2].ID != "a" {
		t.Errorf("order = [%s %s %s], want newest first", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testProject("p1", time.Now())
	p.AgentRun.History = agentrun.AppendEntry(p.AgentRun.History, agentrun.EntryStatus, "queued")
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	got.Rules[0] = "mutated"
	got.AgentRun.History[0].Content = "mutated"

	fresh, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject again: %v", err)
	}
	if fresh.Rules[0] != "use conventional commits" {
		t.Error("stored rules were mutated through a returned copy")
	}
	if fresh.AgentRun.History[0].Content != "queued" {
		t.Error("stored history was mutated through a returned copy")
	}
}
