package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
)

const workerRepoColumns = `id, project_id, host_url, remote_id, remote_path,
	token_secret_ref, current_version, created_at, updated_at`

func scanWorkerRepo(row scannable) (*workerrepo.Repository, error) {
	var r workerrepo.Repository
	err := row.Scan(&r.ID, &r.ProjectID, &r.HostURL, &r.RemoteID, &r.RemotePath,
		&r.TokenSecretRef, &r.CurrentVersion, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetWorkerRepositoryByProject returns the project's worker repository.
func (s *Store) GetWorkerRepositoryByProject(ctx context.Context, projectID string) (*workerrepo.Repository, error) {
	r, err := scanWorkerRepo(s.pool.QueryRow(ctx,
		`SELECT `+workerRepoColumns+` FROM worker_repositories WHERE project_id = $1`, projectID))
	if err != nil {
		return nil, notFoundWrap(err, "get worker repository for project %s", projectID)
	}
	return r, nil
}

// CreateWorkerRepository persists a newly provisioned worker repository.
func (s *Store) CreateWorkerRepository(ctx context.Context, req workerrepo.CreateRequest) (*workerrepo.Repository, error) {
	r, err := scanWorkerRepo(s.pool.QueryRow(ctx,
		`INSERT INTO worker_repositories
		   (project_id, host_url, remote_id, remote_path, token_secret_ref, current_version)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+workerRepoColumns,
		req.ProjectID, req.HostURL, req.RemoteID, req.RemotePath, req.TokenSecretRef, req.CurrentVersion))
	if err != nil {
		return nil, fmt.Errorf("create worker repository: %w", err)
	}
	return r, nil
}

// UpdateWorkerRepositoryVersion rolls the repository onto a new version.
// Old version directories stay in place remotely for rollback.
func (s *Store) UpdateWorkerRepositoryVersion(ctx context.Context, id, version string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE worker_repositories SET current_version = $2, updated_at = NOW() WHERE id = $1`,
		id, version)
	return execExpectOne(tag, err, "update worker repository %s version", id)
}
