package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TaskPilot/internal/domain/task"
)

const taskColumns = `id, project_id, title, description, status, issue_provider, issue_id,
	COALESCE(space_id, ''), created_at, updated_at`

func scanTask(row scannable) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status,
		&t.IssueProvider, &t.IssueID, &t.SpaceID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return t, nil
}

// CreateTask inserts a new task in processing state.
func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`INSERT INTO tasks (project_id, title, description, status, issue_provider, issue_id, space_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskColumns,
		req.ProjectID, req.Title, req.Description, task.StatusProcessing,
		req.IssueProvider, req.IssueID, nullIfEmpty(req.SpaceID)))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// UpdateTaskStatus sets a task's status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status task.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "update task %s status", id)
}
