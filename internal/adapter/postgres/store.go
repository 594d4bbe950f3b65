package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentdeck/agentdeck/internal/domain"
	"github.com/agentdeck/agentdeck/internal/domain/agentrun"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

// Store implements the project store port using PostgreSQL. Rules and the
// embedded agent run are stored as JSONB; the run is small (bounded history)
// and always read and written with its project.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const projectColumns = `id, name, repo_url, rules, agent_run, created_at, updated_at`

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

// SaveProject inserts or fully replaces a project row.
func (s *Store) SaveProject(ctx context.Context, p *project.Project) error {
	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	runJSON, err := json.Marshal(p.AgentRun)
	if err != nil {
		return fmt.Errorf("marshal agent run: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, repo_url, rules, agent_run, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     repo_url = EXCLUDED.repo_url,
		     rules = EXCLUDED.rules,
		     agent_run = EXCLUDED.agent_run,
		     updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.RepoURL, rulesJSON, runJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// scanProject reads one project row. Works for both pgx.Row and pgx.Rows.
func scanProject(row pgx.Row) (project.Project, error) {
	var (
		p         project.Project
		rulesJSON []byte
		runJSON   []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &rulesJSON, &runJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &p.Rules); err != nil {
			return project.Project{}, fmt.Errorf("unmarshal rules: %w", err)
		}
	}
	if len(runJSON) > 0 {
		if err := json.Unmarshal(runJSON, &p.AgentRun); err != nil {
			return project.Project{}, fmt.Errorf("unmarshal agent run: %w", err)
		}
	}
	if p.AgentRun.Status == "" {
		p.AgentRun = agentrun.New()
	}
	return p, nil
}
