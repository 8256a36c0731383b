package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	tpotel "github.com/Strob0t/TaskPilot/internal/adapter/otel"
	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/port/broadcast"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/filespace"
	"github.com/Strob0t/TaskPilot/internal/port/issuesource"
	"github.com/Strob0t/TaskPilot/internal/port/notifier"
	"github.com/Strob0t/TaskPilot/internal/port/runner"
	"github.com/Strob0t/TaskPilot/internal/secrets"
)

// instructionTemplate is the fixed prompt driving in-process runners.
const instructionTemplate = `Read the full issue context below before changing anything.

Issue: %s

%s

Restrict your changes to what the issue asks for. When done, commit your
work and push the branch.`

// IssueProcessor is the polling-loop orchestrator: it pulls issues from a
// project's sources, dedups and locks via the SignalCache, creates
// task/session rows, and hands execution to the routed backend. The sdk
// backend runs in process: workspace preparation, runner streaming, and
// completion bookkeeping all happen here.
type IssueProcessor struct {
	store         database.Store
	signals       *SignalCache
	selector      *RunnerSelector
	router        *WorkerTypeRouter
	vault         *secrets.Vault
	notify        notifier.Notifier
	events        broadcast.Broadcaster
	workerID      string
	lockTTL       time.Duration
	workspaceRoot string
	metrics       *tpotel.Metrics

	// newSource and newSpace are swappable for tests; they default to the
	// package registries.
	newSource func(cfg project.SourceConfig, token string) (issuesource.Source, error)
	newSpace  func(cfg project.SpaceConfig) (filespace.Space, error)
	newRunner func(rt worker.RunnerType) (runner.Runner, error)
}

// NewIssueProcessor creates a processor. notify and events may be nil.
func NewIssueProcessor(store database.Store, signals *SignalCache, selector *RunnerSelector, router *WorkerTypeRouter, vault *secrets.Vault, notify notifier.Notifier, events broadcast.Broadcaster, workerID string, lockTTL time.Duration, workspaceRoot string) *IssueProcessor {
	return &IssueProcessor{
		store:         store,
		signals:       signals,
		selector:      selector,
		router:        router,
		vault:         vault,
		notify:        notify,
		events:        events,
		workerID:      workerID,
		lockTTL:       lockTTL,
		workspaceRoot: workspaceRoot,
		newSource:     issuesource.New,
		newSpace:      filespace.New,
		newRunner: func(rt worker.RunnerType) (runner.Runner, error) {
			return runner.New(rt, nil)
		},
	}
}

// SetMetrics installs the metric instruments. Optional; nil disables them.
func (p *IssueProcessor) SetMetrics(m *tpotel.Metrics) {
	p.metrics = m
}

// ProcessProject sweeps every configured source of one project. Per-issue
// failures are logged and do not stop the sweep.
func (p *IssueProcessor) ProcessProject(ctx context.Context, proj *project.Project) error {
	for _, srcCfg := range proj.Sources {
		token := p.vault.Get(srcCfg.TokenSecretRef)
		src, err := p.newSource(srcCfg, token)
		if err != nil {
			return fmt.Errorf("build source %s: %w", srcCfg.Type, err)
		}

		for issue, err := range src.Issues(ctx) {
			if err != nil {
				slog.Error("list issues",
					"project_id", proj.ID, "source", srcCfg.Type, "error", err)
				break
			}
			if err := p.ProcessIssue(ctx, proj, src.Name(), issue); err != nil {
				slog.Error("process issue",
					"project_id", proj.ID, "issue_id", issue.UniqueID, "error", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// ProcessIssue runs the orchestration sequence for one issue. Any error
// after the lock was taken releases it before returning, so the issue stays
// retriable on a later poll.
func (p *IssueProcessor) ProcessIssue(ctx context.Context, proj *project.Project, source string, issue issuesource.Issue) error {
	ctx, span := tpotel.StartIssueSpan(ctx, source, issue.UniqueID, proj.ID)
	defer span.End()
	start := time.Now()

	done, err := p.signals.IsSignaledBefore(ctx, source, issue.UniqueID, issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if done {
		p.countSkipped(ctx, "dedup")
		return nil
	}

	if err := p.signals.AcquireLock(ctx, source, issue.UniqueID, p.workerID, p.lockTTL); err != nil {
		if errors.Is(err, domain.ErrLocked) {
			slog.Debug("issue locked by another worker",
				"issue_id", issue.UniqueID, "source", source, "detail", err)
			p.countSkipped(ctx, "locked")
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	if err := p.runLocked(ctx, proj, source, issue); err != nil {
		if rlErr := p.signals.ReleaseLock(ctx, source, issue.UniqueID, p.workerID); rlErr != nil {
			slog.Error("release lock after failure",
				"issue_id", issue.UniqueID, "error", rlErr)
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.IssuesProcessed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("issue.source", source)))
		p.metrics.IssueDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

func (p *IssueProcessor) countSkipped(ctx context.Context, reason string) {
	if p.metrics != nil {
		p.metrics.IssuesSkipped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason)))
	}
}

// runLocked does the work between lock acquisition and signal. The caller
// owns lock release on error.
func (p *IssueProcessor) runLocked(ctx context.Context, proj *project.Project, source string, issue issuesource.Issue) error {
	rt := p.selector.Select()

	tk, err := p.store.CreateTask(ctx, task.CreateRequest{
		ProjectID:     proj.ID,
		Title:         issue.Title,
		Description:   issue.Description,
		IssueProvider: source,
		IssueID:       issue.UniqueID,
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if p.metrics != nil {
		p.metrics.TasksCreated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("runner.type", string(rt))))
	}

	sess, err := p.store.CreateSession(ctx, session.CreateRequest{
		TaskID:     tk.ID,
		RunnerType: rt,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	p.broadcastTaskStatus(ctx, tk, proj, "")

	wt := proj.ResolveWorkerType("")
	if wt != worker.TypeSDK {
		if err := p.router.Dispatch(ctx, tk, sess, proj, ""); err != nil {
			p.markFailed(ctx, tk, proj)
			return err
		}
		// Dispatched backends report completion through their own channel;
		// for dedup purposes the issue revision is handled.
		if err := p.signals.Signal(ctx, source, issue.UniqueID, issue.UpdatedAt, tk.ID); err != nil {
			return fmt.Errorf("signal after dispatch: %w", err)
		}
		return nil
	}

	if err := p.runInProcess(ctx, proj, tk, sess, issue); err != nil {
		p.markFailed(ctx, tk, proj)
		return err
	}

	if err := p.store.UpdateTaskStatus(ctx, tk.ID, task.StatusCompleted); err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	tk.Status = task.StatusCompleted
	if err := p.signals.Signal(ctx, source, issue.UniqueID, issue.UpdatedAt, tk.ID); err != nil {
		return fmt.Errorf("signal completion: %w", err)
	}

	p.broadcastTaskStatus(ctx, tk, proj, worker.TypeSDK)
	p.notifyCompletion(ctx, tk, issue)
	return nil
}

// runInProcess prepares the workspace and drives the runner, streaming its
// chunks into the session's message log. The terminal result chunk is the
// sole success signal.
func (p *IssueProcessor) runInProcess(ctx context.Context, proj *project.Project, tk *task.Task, sess *session.Session, issue issuesource.Issue) error {
	workDir := ""
	if proj.Space != nil {
		dir, err := p.prepareWorkspace(ctx, proj, tk)
		if err != nil {
			return err
		}
		workDir = dir
	}

	r, err := p.newRunner(sess.RunnerType)
	if err != nil {
		return fmt.Errorf("build runner %s: %w", sess.RunnerType, err)
	}

	opts := runner.Options{WorkDir: workDir}
	if ai := proj.AIProvider(sess.RunnerType); ai != nil && ai.KeySecretRef != "" {
		key, err := p.vault.Resolve(ai.KeySecretRef)
		if err != nil {
			return fmt.Errorf("resolve runner credential: %w", err)
		}
		opts.Env = map[string]string{"TASKPILOT_AI_API_KEY": key}
	}

	prompt := fmt.Sprintf(instructionTemplate,
		sanitizePromptInput(issue.Title), sanitizePromptInput(issue.Description))
	chunks, err := r.Query(ctx, prompt, opts)
	if err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	completed := false
	for chunk := range chunks {
		payload, mErr := json.Marshal(chunk)
		if mErr != nil {
			payload = []byte(fmt.Sprintf("%+v", chunk))
		}
		if aErr := p.store.AppendMessage(ctx, sess.ID, string(chunk.Kind), payload); aErr != nil {
			slog.Error("append session message",
				"session_id", sess.ID, "error", aErr)
		}
		p.broadcastChunk(ctx, sess, tk, chunk)

		if chunk.Kind == runner.ChunkResult {
			completed = true
			if p.metrics != nil && chunk.CostUSD > 0 {
				p.metrics.RunnerCost.Record(ctx, chunk.CostUSD, metric.WithAttributes(
					attribute.String("runner.type", string(sess.RunnerType))))
			}
		}
	}

	if !completed {
		return fmt.Errorf("runner %s finished without a result chunk", sess.RunnerType)
	}
	return nil
}

// prepareWorkspace clones the project space if needed and puts it on a
// per-task branch.
func (p *IssueProcessor) prepareWorkspace(ctx context.Context, proj *project.Project, tk *task.Task) (string, error) {
	space, err := p.newSpace(*proj.Space)
	if err != nil {
		return "", fmt.Errorf("build file space: %w", err)
	}

	sub := proj.Space.WorkspaceDir()
	if sub == "" {
		sub = proj.ID
	}
	dir := filepath.Join(p.workspaceRoot, sub)
	if err := space.Clone(ctx, dir); err != nil {
		return "", fmt.Errorf("clone workspace: %w", err)
	}

	name := "task-" + tk.ID
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

// markFailed is best-effort terminal bookkeeping on a failure path.
func (p *IssueProcessor) markFailed(ctx context.Context, tk *task.Task, proj *project.Project) {
	if err := p.store.UpdateTaskStatus(ctx, tk.ID, task.StatusFailed); err != nil {
		slog.Error("mark task failed", "task_id", tk.ID, "error", err)
	}
	tk.Status = task.StatusFailed
	p.broadcastTaskStatus(ctx, tk, proj, "")
}

// notifyCompletion delivers a best-effort notification; failure is logged,
// never propagated.
func (p *IssueProcessor) notifyCompletion(ctx context.Context, tk *task.Task, issue issuesource.Issue) {
	if p.notify == nil {
		return
	}
	err := p.notify.Send(ctx, notifier.Notification{
		Title:   "Task completed",
		Message: fmt.Sprintf("%s (issue %s)", tk.Title, issue.UniqueID),
		Level:   "success",
		Source:  "task.completed",
	})
	if err != nil {
		slog.Warn("completion notification failed", "task_id", tk.ID, "error", err)
	}
}

func (p *IssueProcessor) broadcastTaskStatus(ctx context.Context, tk *task.Task, proj *project.Project, wt worker.Type) {
	if p.events == nil {
		return
	}
	p.events.BroadcastEvent(ctx, broadcast.EventTaskStatus, broadcast.TaskStatusEvent{
		TaskID:     tk.ID,
		ProjectID:  proj.ID,
		Status:     string(tk.Status),
		WorkerType: string(wt),
	})
}

func (p *IssueProcessor) broadcastChunk(ctx context.Context, sess *session.Session, tk *task.Task, chunk runner.Chunk) {
	if p.events == nil {
		return
	}
	p.events.BroadcastEvent(ctx, broadcast.EventSessionOutput, broadcast.SessionOutputEvent{
		SessionID: sess.ID,
		TaskID:    tk.ID,
		Kind:      string(chunk.Kind),
		Text:      chunk.Text,
	})
}
