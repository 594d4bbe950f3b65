// Package store defines the project store port (interface). Persistence is
// injectable: the engine only needs somewhere to keep projects and their
// agent runs between calls.
package store

import (
	"context"

	"github.com/agentdeck/agentdeck/internal/domain/project"
)

// Store is the port interface for project persistence.
type Store interface {
	ListProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	SaveProject(ctx context.Context, p *project.Project) error
	DeleteProject(ctx context.Context, id string) error
}
