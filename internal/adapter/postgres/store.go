package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Projects ---

const projectColumns = `id, name, owner_id, enabled, worker_type, allow_worker_override,
	sources, space, executor, ai_providers, created_at, updated_at`

func scanProject(row scannable) (*project.Project, error) {
	var p project.Project
	var sources, aiProviders []byte
	var space, executor []byte
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Enabled, &p.WorkerType, &p.AllowOverride,
		&sources, &space, &executor, &aiProviders, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sources, &p.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal(aiProviders, &p.AIProviders); err != nil {
		return nil, fmt.Errorf("decode ai_providers: %w", err)
	}
	if len(space) > 0 {
		if err := json.Unmarshal(space, &p.Space); err != nil {
			return nil, fmt.Errorf("decode space: %w", err)
		}
	}
	if len(executor) > 0 {
		if err := json.Unmarshal(executor, &p.Executor); err != nil {
			return nil, fmt.Errorf("decode executor: %w", err)
		}
	}
	return &p, nil
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// ListEnabledProjects returns all projects the poller should sweep.
func (s *Store) ListEnabledProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list enabled projects: %w", err)
	}
	defer rows.Close()

	var result []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return p, nil
}
