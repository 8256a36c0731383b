package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TaskPilot/internal/adapter/postgres"
	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
)

// newExecution inserts a pending execution together with the project,
// session, and worker repository rows it references.
func newExecution(t *testing.T, store *postgres.Store) *pipeline.Execution {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	var projectID string
	err = pool.QueryRow(ctx,
		`INSERT INTO projects (name) VALUES ('pipeline-test') RETURNING id`).Scan(&projectID)
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}

	repo, err := store.CreateWorkerRepository(ctx, workerrepo.CreateRequest{
		ProjectID:      projectID,
		HostURL:        "https://gitlab.example.com",
		RemoteID:       "123",
		RemotePath:     "workers/pipeline-test",
		CurrentVersion: "v1",
	})
	if err != nil {
		t.Fatalf("create worker repository: %v", err)
	}

	sess, err := store.CreateSession(ctx, session.CreateRequest{RunnerType: worker.RunnerClaude})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	exec, err := store.CreatePipelineExecution(ctx, sess.ID, repo.ID)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sess.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	})
	return exec
}

func TestPipelineExecutionForwardTransitions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	exec := newExecution(t, store)

	if err := store.UpdatePipelineExecution(ctx, exec.ID, "ext-42", pipeline.StatusRunning); err != nil {
		t.Fatalf("pending to running: %v", err)
	}
	if err := store.UpdatePipelineExecution(ctx, exec.ID, "", pipeline.StatusSuccess); err != nil {
		t.Fatalf("running to success: %v", err)
	}

	got, err := store.GetPipelineExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got.Status != pipeline.StatusSuccess || got.ExternalID != "ext-42" {
		t.Fatalf("execution after transitions: %+v", got)
	}
}

func TestPipelineExecutionRejectsBackwardTransition(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	exec := newExecution(t, store)

	if err := store.UpdatePipelineExecution(ctx, exec.ID, "", pipeline.StatusFailed); err != nil {
		t.Fatalf("pending to failed: %v", err)
	}

	err := store.UpdatePipelineExecution(ctx, exec.ID, "", pipeline.StatusRunning)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("reviving a terminal execution must conflict, got %v", err)
	}

	got, err := store.GetPipelineExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got.Status != pipeline.StatusFailed {
		t.Fatalf("terminal status must stick, got %q", got.Status)
	}
}
