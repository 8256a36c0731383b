package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
)

const executionColumns = `id, session_id, worker_repo_id, COALESCE(external_id, ''),
	status, status_at, created_at`

func scanExecution(row scannable) (*pipeline.Execution, error) {
	var e pipeline.Execution
	err := row.Scan(&e.ID, &e.SessionID, &e.WorkerRepoID, &e.ExternalID,
		&e.Status, &e.StatusAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreatePipelineExecution inserts a new execution in pending state.
// Retries create new rows; an existing row is never reset.
func (s *Store) CreatePipelineExecution(ctx context.Context, sessionID, workerRepoID string) (*pipeline.Execution, error) {
	e, err := scanExecution(s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_executions (session_id, worker_repo_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+executionColumns,
		sessionID, workerRepoID, pipeline.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("create pipeline execution: %w", err)
	}
	return e, nil
}

// UpdatePipelineExecution records the remote pipeline id and new status.
// Transitions are validated against the state machine, and the UPDATE only
// matches while the row still holds the status that was read, so a lost race
// with a concurrent writer surfaces as ErrConflict instead of a silent
// overwrite.
func (s *Store) UpdatePipelineExecution(ctx context.Context, id, externalID string, status pipeline.Status) error {
	cur, err := s.GetPipelineExecution(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransition(status) {
		return fmt.Errorf("update pipeline execution %s: %s to %s: %w",
			id, cur.Status, status, domain.ErrConflict)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_executions
		 SET external_id = COALESCE($2, external_id), status = $3, status_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, nullIfEmpty(externalID), status, cur.Status)
	if err != nil {
		return fmt.Errorf("update pipeline execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update pipeline execution %s: status changed concurrently: %w",
			id, domain.ErrConflict)
	}
	return nil
}

// GetPipelineExecution returns an execution by ID.
func (s *Store) GetPipelineExecution(ctx context.Context, id string) (*pipeline.Execution, error) {
	e, err := scanExecution(s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM pipeline_executions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get pipeline execution %s", id)
	}
	return e, nil
}
