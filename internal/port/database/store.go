// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/signal"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
)

// Store is the port interface for database operations. All writes to shared
// state are single-statement conditional upserts or updates; no multi-row
// transaction ever spans a full issue-processing sequence.
type Store interface {
	// Projects
	ListEnabledProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)

	// Tasks
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status task.Status) error

	// Sessions and their message streams
	GetSession(ctx context.Context, id string) (*session.Session, error)
	CreateSession(ctx context.Context, req session.CreateRequest) (*session.Session, error)
	UpdateSessionWorkerType(ctx context.Context, id string, wt worker.Type) error
	AppendMessage(ctx context.Context, sessionID, kind string, payload []byte) error
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)

	// Issue signals (dedup + mutual exclusion)
	GetSignal(ctx context.Context, source, issueID string) (*signal.Record, error)
	// IsSignaledSince reports whether a record exists with
	// last_processed_at >= since.
	IsSignaledSince(ctx context.Context, source, issueID string, since time.Time) (bool, error)
	// TryAcquireLock atomically claims the issue for holder unless a
	// non-expired claim exists. Single conditional upsert; returns false
	// on contention.
	TryAcquireLock(ctx context.Context, source, issueID, holder string, ttl time.Duration) (bool, error)
	// Signal stamps a successful run and implicitly releases the lock.
	Signal(ctx context.Context, source, issueID string, processedAt time.Time, taskID string) error
	// ReleaseLock clears the lock early so the issue can be retried before
	// the ttl elapses. Only the holder's own lock is cleared.
	ReleaseLock(ctx context.Context, source, issueID, holder string) error

	// Pipeline executions
	CreatePipelineExecution(ctx context.Context, sessionID, workerRepoID string) (*pipeline.Execution, error)
	UpdatePipelineExecution(ctx context.Context, id, externalID string, status pipeline.Status) error
	GetPipelineExecution(ctx context.Context, id string) (*pipeline.Execution, error)

	// Worker repositories
	GetWorkerRepositoryByProject(ctx context.Context, projectID string) (*workerrepo.Repository, error)
	CreateWorkerRepository(ctx context.Context, req workerrepo.CreateRequest) (*workerrepo.Repository, error)
	UpdateWorkerRepositoryVersion(ctx context.Context, id, version string) error

	// Shared-credential quota
	QuotaRemaining(ctx context.Context, userID string) (int, error)
	IncrementQuotaUsage(ctx context.Context, userID string) error
}
