package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/port/broadcast"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/filespace"
	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
	"github.com/Strob0t/TaskPilot/internal/port/runner"
	"github.com/Strob0t/TaskPilot/internal/secrets"
)

// DispatchExecutor runs a dispatched task message on the worker side. The
// payload is denormalized, so execution needs no project reads; only status
// and message writes touch the store. A result message is published to the
// dispatch's reply subject on success.
type DispatchExecutor struct {
	store         database.Store
	vault         *secrets.Vault
	queue         messagequeue.Queue
	events        broadcast.Broadcaster
	workspaceRoot string

	newSpace  func(cfg project.SpaceConfig) (filespace.Space, error)
	newRunner func(rt worker.RunnerType) (runner.Runner, error)
}

// NewDispatchExecutor creates an executor. events may be nil.
func NewDispatchExecutor(store database.Store, vault *secrets.Vault, queue messagequeue.Queue, events broadcast.Broadcaster, workspaceRoot string) *DispatchExecutor {
	return &DispatchExecutor{
		store:         store,
		vault:         vault,
		queue:         queue,
		events:        events,
		workspaceRoot: workspaceRoot,
		newSpace:      filespace.New,
		newRunner: func(rt worker.RunnerType) (runner.Runner, error) {
			return runner.New(rt, nil)
		},
	}
}

// Execute runs one dispatched task to completion. Errors bubble to the
// consumer, which owns retry and dead letter policy; the task is marked
// failed on the way out so status queries see the latest attempt. The
// result is published to replyTo, falling back to the default result
// subject when the dispatcher set none.
func (e *DispatchExecutor) Execute(ctx context.Context, payload messagequeue.TaskDispatchPayload, replyTo string) error {
	timeout := time.Duration(payload.Context.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = messagequeue.DispatchTimeoutSeconds * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.run(ctx, payload)
	if err != nil {
		if uErr := e.store.UpdateTaskStatus(ctx, payload.TaskID, task.StatusFailed); uErr != nil {
			slog.Error("mark dispatched task failed", "task_id", payload.TaskID, "error", uErr)
		}
		return err
	}

	if err := e.store.UpdateTaskStatus(ctx, payload.TaskID, task.StatusCompleted); err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	e.publishResult(ctx, payload, replyTo, result)
	return nil
}

type executeResult struct {
	output  string
	costUSD float64
}

func (e *DispatchExecutor) run(ctx context.Context, payload messagequeue.TaskDispatchPayload) (executeResult, error) {
	var result executeResult

	workDir := ""
	if payload.Context.SpaceCloneURL != "" {
		dir, err := e.prepareWorkspace(ctx, payload)
		if err != nil {
			return result, err
		}
		workDir = dir
	}

	rt := worker.RunnerType(payload.Context.RunnerType)
	r, err := e.newRunner(rt)
	if err != nil {
		return result, fmt.Errorf("build runner %s: %w", rt, err)
	}

	opts := runner.Options{WorkDir: workDir}
	if ref := payload.Context.KeySecretRef; ref != "" {
		key, err := e.vault.Resolve(ref)
		if err != nil {
			return result, fmt.Errorf("resolve runner credential: %w", err)
		}
		opts.Env = map[string]string{"TASKPILOT_AI_API_KEY": key}
	}

	prompt := fmt.Sprintf(instructionTemplate,
		sanitizePromptInput(payload.Context.Title), sanitizePromptInput(payload.Context.Description))
	chunks, err := r.Query(ctx, prompt, opts)
	if err != nil {
		return result, fmt.Errorf("start runner: %w", err)
	}

	completed := false
	for chunk := range chunks {
		data, mErr := json.Marshal(chunk)
		if mErr != nil {
			data = []byte(fmt.Sprintf("%+v", chunk))
		}
		if aErr := e.store.AppendMessage(ctx, payload.SessionID, string(chunk.Kind), data); aErr != nil {
			slog.Error("append session message",
				"session_id", payload.SessionID, "error", aErr)
		}
		e.broadcastChunk(ctx, payload, chunk)

		if chunk.Kind == runner.ChunkResult {
			completed = true
			result.output = chunk.Text
			result.costUSD = chunk.CostUSD
		}
	}

	if !completed {
		return result, fmt.Errorf("runner %s finished without a result chunk", rt)
	}
	return result, nil
}

func (e *DispatchExecutor) prepareWorkspace(ctx context.Context, payload messagequeue.TaskDispatchPayload) (string, error) {
	space, err := e.newSpace(project.SpaceConfig{
		Type:     "git",
		CloneURL: payload.Context.SpaceCloneURL,
		Dir:      payload.Context.SpaceDir,
	})
	if err != nil {
		return "", fmt.Errorf("build file space: %w", err)
	}

	sub := payload.Context.SpaceDir
	if sub == "" {
		sub = payload.ProjectID
	}
	dir := filepath.Join(e.workspaceRoot, sub)
	if err := space.Clone(ctx, dir); err != nil {
		return "", fmt.Errorf("clone workspace: %w", err)
	}

	name := "task-" + payload.TaskID
	exists, err := space.WorkspaceExists(ctx, dir, name)
	if err != nil {
		return "", fmt.Errorf("check workspace %s: %w", name, err)
	}
	if exists {
		if err := space.SwitchToWorkspace(ctx, dir, name); err != nil {
			return "", fmt.Errorf("switch workspace %s: %w", name, err)
		}
	} else if err := space.CreateWorkspace(ctx, dir, name); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", name, err)
	}
	return dir, nil
}

// publishResult is best-effort: the task row already carries the terminal
// status, the result message only feeds live listeners.
func (e *DispatchExecutor) publishResult(ctx context.Context, payload messagequeue.TaskDispatchPayload, replyTo string, result executeResult) {
	if replyTo == "" {
		replyTo = messagequeue.SubjectTaskResult
	}
	data, err := json.Marshal(messagequeue.TaskResultPayload{
		TaskID:    payload.TaskID,
		SessionID: payload.SessionID,
		Status:    string(task.StatusCompleted),
		Output:    result.output,
		CostUSD:   result.costUSD,
	})
	if err != nil {
		slog.Error("marshal task result", "task_id", payload.TaskID, "error", err)
		return
	}
	err = e.queue.Publish(ctx, replyTo, data, messagequeue.PublishOptions{})
	if err != nil {
		slog.Warn("publish task result", "task_id", payload.TaskID, "error", err)
	}
}

func (e *DispatchExecutor) broadcastChunk(ctx context.Context, payload messagequeue.TaskDispatchPayload, chunk runner.Chunk) {
	if e.events == nil {
		return
	}
	e.events.BroadcastEvent(ctx, broadcast.EventSessionOutput, broadcast.SessionOutputEvent{
		SessionID: payload.SessionID,
		TaskID:    payload.TaskID,
		Kind:      string(chunk.Kind),
		Text:      chunk.Text,
	})
}
