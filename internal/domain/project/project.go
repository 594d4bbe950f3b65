// Package project defines the Project domain entity. A project is one GitHub
// repository the user steers a remote agent against; it exclusively owns its
// AgentRun.
package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
)

// Project is a repository under agent management. AgentRun is non-optional:
// every project starts with an idle run and the run is discarded with the
// project.
type Project struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	RepoURL   string            `json:"repo_url"`
	Rules     []string          `json:"rules,omitempty"` // standing instructions folded into every prompt
	AgentRun  agentrun.AgentRun `json:"agent_run"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a project.
type CreateRequest struct {
	Name    string   `json:"name"`
	RepoURL string   `json:"repo_url"`
	Rules   []string `json:"rules,omitempty"`
}

// Validate checks a create request for obvious problems.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(r.Name) > 128 {
		return fmt.Errorf("%w: name too long (max 128 chars)", domain.ErrValidation)
	}
	if strings.TrimSpace(r.RepoURL) == "" {
		return fmt.Errorf("%w: repo_url is required", domain.ErrValidation)
	}
	if !strings.HasPrefix(r.RepoURL, "https://") && !strings.HasPrefix(r.RepoURL, "git@") {
		return fmt.Errorf("%w: repo_url must be an https or git URL", domain.ErrValidation)
	}
	return nil
}

// New builds a Project from a validated create request. The agent run starts
// idle with empty history.
func New(id string, req CreateRequest, now time.Time) *Project {
	return &Project{
		ID:        id,
		Name:      req.Name,
		RepoURL:   req.RepoURL,
		Rules:     req.Rules,
		AgentRun:  agentrun.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
