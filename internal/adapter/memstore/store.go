// Package memstore implements the project store port in memory. It is the
// default backend for local development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

// Store keeps projects in a map guarded by a mutex. Values are deep-copied
// on the way in and out so callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	projects map[string]project.Project
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects: make(map[string]project.Project),
	}
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetProject(_ context.Context, id string) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	c := clone(p)
	return &c, nil
}

func (s *Store) SaveProject(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects[p.ID] = clone(*p)
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	delete(s.projects, id)
	return nil
}

// clone deep-copies the slices a project carries.
func clone(p project.Project) project.Project {
	out := p
	if p.Rules != nil {
		out.Rules = append([]string(nil), p.Rules...)
	}
	run := p.AgentRun
	if run.History != nil {
		run.History = append([]agentrun.HistoryEntry(nil), run.History...)
	}
	if run.CurrentPlan != nil {
		planCopy := *run.CurrentPlan
		if planCopy.Steps != nil {
			planCopy.Steps = append([]string(nil), planCopy.Steps...)
		}
		run.CurrentPlan = &planCopy
	}
	out.AgentRun = run
	return out
}
