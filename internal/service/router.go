package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
)

// WorkerTypeRouter decides which backend executes a task and dispatches
// accordingly: a persistent queue message, a CI pipeline trigger, or nothing
// for the polling SDK backend (the poller executes those in process).
type WorkerTypeRouter struct {
	store   database.Store
	queue   messagequeue.Queue
	trigger *PipelineTrigger
}

// NewWorkerTypeRouter creates a router.
func NewWorkerTypeRouter(store database.Store, queue messagequeue.Queue, trigger *PipelineTrigger) *WorkerTypeRouter {
	return &WorkerTypeRouter{store: store, queue: queue, trigger: trigger}
}

// Resolve returns the backend for the project, applying an optional caller
// override only when the project allows overrides.
func (r *WorkerTypeRouter) Resolve(proj *project.Project, override worker.Type) worker.Type {
	return proj.ResolveWorkerType(override)
}

// Dispatch routes one task/session pair to its backend. The session's
// executed-by field is updated before any message leaves the process, so
// status queries reflect the routing decision even if the message has not
// been consumed yet.
func (r *WorkerTypeRouter) Dispatch(ctx context.Context, tk *task.Task, sess *session.Session, proj *project.Project, override worker.Type) error {
	wt := r.Resolve(proj, override)

	if err := r.store.UpdateSessionWorkerType(ctx, sess.ID, wt); err != nil {
		return fmt.Errorf("record routing decision for session %s: %w", sess.ID, err)
	}
	sess.ExecutedBy = wt

	switch wt {
	case worker.TypeQueue:
		return r.publishDispatch(ctx, tk, sess, proj)
	case worker.TypePipeline:
		if _, err := r.trigger.Trigger(ctx, sess.ID); err != nil {
			return err
		}
		return nil
	case worker.TypeSDK:
		// The polling SDK worker executes in process; nothing to send.
		slog.Debug("task left for sdk worker", "task_id", tk.ID, "session_id", sess.ID)
		return nil
	default:
		return fmt.Errorf("unknown worker type %q", wt)
	}
}

// publishDispatch builds the denormalized task message and publishes it as
// a persistent message with a fresh correlation id and a reply-to subject.
func (r *WorkerTypeRouter) publishDispatch(ctx context.Context, tk *task.Task, sess *session.Session, proj *project.Project) error {
	payload := messagequeue.TaskDispatchPayload{
		TaskID:    tk.ID,
		SessionID: sess.ID,
		ProjectID: proj.ID,
		Context: messagequeue.ExecutionContext{
			Title:          tk.Title,
			Description:    tk.Description,
			RunnerType:     string(sess.RunnerType),
			TimeoutSeconds: messagequeue.DispatchTimeoutSeconds,
		},
	}
	if ai := proj.AIProvider(sess.RunnerType); ai != nil {
		payload.Context.Model = ai.Model
		payload.Context.KeySecretRef = ai.KeySecretRef
		payload.Context.ProxyURL = ai.ProxyURL
	}
	if proj.Space != nil {
		payload.Context.SpaceCloneURL = proj.Space.CloneURL
		payload.Context.SpaceDir = proj.Space.WorkspaceDir()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}

	correlationID := uuid.NewString()
	err = r.queue.Publish(ctx, messagequeue.SubjectTaskDispatch, data, messagequeue.PublishOptions{
		CorrelationID: correlationID,
		ReplyTo:       messagequeue.SubjectTaskResult,
	})
	if err != nil {
		return fmt.Errorf("publish dispatch for task %s: %w", tk.ID, err)
	}

	slog.Info("task dispatched to queue",
		"task_id", tk.ID, "session_id", sess.ID, "correlation_id", correlationID)
	return nil
}
