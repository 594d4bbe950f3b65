// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/domain/project"
	"github.com/agentdeck/agentdeck/internal/port/broadcast"
	"github.com/agentdeck/agentdeck/internal/port/store"
)

// ProjectService handles project CRUD.
type ProjectService struct {
	store store.Store
	hub   broadcast.Broadcaster
}

// NewProjectService creates a ProjectService. hub may be broadcast.Nop.
func NewProjectService(s store.Store, hub broadcast.Broadcaster) *ProjectService {
	return &ProjectService{store: s, hub: hub}
}

// List returns all projects, newest first.
func (s *ProjectService) List(ctx context.Context) ([]project.Project, error) {
	return s.store.ListProjects(ctx)
}

// Get returns a project by ID.
func (s *ProjectService) Get(ctx context.Context, id string) (*project.Project, error) {
	return s.store.GetProject(ctx, id)
}

// Create validates the request and creates a project with a fresh idle run.
func (s *ProjectService) Create(ctx context.Context, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := project.New(uuid.NewString(), req, time.Now().UTC())
	if err := s.store.SaveProject(ctx, p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	slog.Info("project created", "project_id", p.ID, "name", p.Name)
	s.hub.BroadcastEvent(ctx, ws.EventProject, ws.ProjectEvent{ProjectID: p.ID, Action: "created"})
	return p, nil
}

// UpdateRules replaces a project's standing rules.
func (s *ProjectService) UpdateRules(ctx context.Context, id string, rules []string) (*project.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Rules = rules
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveProject(ctx, p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	s.hub.BroadcastEvent(ctx, ws.EventProject, ws.ProjectEvent{ProjectID: id, Action: "updated"})
	return p, nil
}

// Delete removes a project. The embedded agent run is discarded with it.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}

	slog.Info("project deleted", "project_id", id)
	s.hub.BroadcastEvent(ctx, ws.EventProject, ws.ProjectEvent{ProjectID: id, Action: "deleted"})
	return nil
}
