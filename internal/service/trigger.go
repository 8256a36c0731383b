package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	tpotel "github.com/Strob0t/TaskPilot/internal/adapter/otel"
	"github.com/Strob0t/TaskPilot/internal/config"
	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
	"github.com/Strob0t/TaskPilot/internal/port/database"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
	"github.com/Strob0t/TaskPilot/internal/secrets"
)

// HostFactory builds a repository host client for the given base URL and
// already-resolved token. Worker repositories may live on different hosts
// per project, so the trigger constructs clients on demand.
type HostFactory func(baseURL, token string) repohost.Host

// PipelineTrigger drives the ci-pipeline backend: it resolves (or lazily
// creates) the project's worker repository, composes the trigger variables,
// and invokes the remote pipeline under a bounded retry policy.
type PipelineTrigger struct {
	store    database.Store
	vault    *secrets.Vault
	syncer   *WorkerRepositorySynchronizer
	hosts    HostFactory
	cfg      config.Pipeline
	executor config.Executor
	enabled  map[worker.RunnerType]bool
	metrics  *tpotel.Metrics
}

// NewPipelineTrigger creates a PipelineTrigger. enabledRunners gates which
// runner types may be triggered.
func NewPipelineTrigger(store database.Store, vault *secrets.Vault, syncer *WorkerRepositorySynchronizer, hosts HostFactory, cfg config.Pipeline, executor config.Executor, enabledRunners []string) *PipelineTrigger {
	enabled := make(map[worker.RunnerType]bool, len(enabledRunners))
	for _, name := range enabledRunners {
		enabled[worker.RunnerType(name)] = true
	}
	return &PipelineTrigger{
		store:    store,
		vault:    vault,
		syncer:   syncer,
		hosts:    hosts,
		cfg:      cfg,
		executor: executor,
		enabled:  enabled,
	}
}

// SetMetrics installs the metric instruments. Optional; nil disables them.
func (t *PipelineTrigger) SetMetrics(m *tpotel.Metrics) {
	t.metrics = m
}

// Trigger runs the full pipeline-trigger sequence for a session. The
// returned execution is terminal-failed or carries the external pipeline id;
// it is never left pending without a trigger attempt having been made.
func (t *PipelineTrigger) Trigger(ctx context.Context, sessionID string) (*pipeline.Execution, error) {
	sess, proj, err := t.resolveChain(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, span := tpotel.StartTriggerSpan(ctx, sess.ID, string(sess.RunnerType))
	defer span.End()

	host, repo, err := t.ensureWorkerRepository(ctx, proj)
	if err != nil {
		return nil, err
	}

	vars, usedShared, err := t.composeVariables(ctx, sess, proj, repo)
	if err != nil {
		return nil, err
	}

	exec, err := t.store.CreatePipelineExecution(ctx, sess.ID, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("create pipeline execution: %w", err)
	}
	vars["TASKPILOT_EXECUTION_ID"] = exec.ID

	externalID, err := backoff.Retry(ctx, func() (string, error) {
		if t.metrics != nil {
			t.metrics.TriggerAttempts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("runner.type", string(sess.RunnerType))))
		}
		id, triggerErr := host.TriggerPipeline(ctx, repo.RemoteID, workerRepoBranch, vars)
		if triggerErr != nil {
			if !retryableRemoteError(triggerErr) {
				return "", backoff.Permanent(triggerErr)
			}
			return "", triggerErr
		}
		return id, nil
	},
		backoff.WithBackOff(initialBackOff(t.cfg.InitialBackoff)),
		backoff.WithMaxTries(uint(t.cfg.Attempts)),
	)
	if err != nil {
		if updErr := t.store.UpdatePipelineExecution(ctx, exec.ID, "", pipeline.StatusFailed); updErr != nil {
			slog.Error("mark pipeline execution failed",
				"execution_id", exec.ID, "error", updErr)
		}
		exec.Status = pipeline.StatusFailed
		if t.metrics != nil {
			t.metrics.TriggerFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("runner.type", string(sess.RunnerType))))
		}
		return exec, fmt.Errorf("trigger pipeline for session %s: %w", sess.ID, err)
	}

	if err := t.store.UpdatePipelineExecution(ctx, exec.ID, externalID, pipeline.StatusRunning); err != nil {
		return exec, fmt.Errorf("persist pipeline id %s: %w", externalID, err)
	}
	exec.ExternalID = externalID
	exec.Status = pipeline.StatusRunning

	if usedShared {
		if err := t.store.IncrementQuotaUsage(ctx, proj.OwnerID); err != nil {
			slog.Warn("increment shared credential quota",
				"owner_id", proj.OwnerID, "error", err)
		}
	}

	slog.Info("pipeline triggered",
		"session_id", sess.ID, "execution_id", exec.ID, "pipeline_id", externalID)
	return exec, nil
}

// resolveChain loads the session, its task, and its project. Any missing
// link is a non-retryable precondition failure.
func (t *PipelineTrigger) resolveChain(ctx context.Context, sessionID string) (*session.Session, *project.Project, error) {
	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.TaskID == "" {
		return nil, nil, fmt.Errorf("session %s has no task: %w", sessionID, domain.ErrPrecondition)
	}

	tk, err := t.store.GetTask(ctx, sess.TaskID)
	if err != nil {
		return nil, nil, fmt.Errorf("load task %s: %w", sess.TaskID, err)
	}
	if tk.ProjectID == "" {
		return nil, nil, fmt.Errorf("task %s has no project: %w", tk.ID, domain.ErrPrecondition)
	}

	proj, err := t.store.GetProject(ctx, tk.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load project %s: %w", tk.ProjectID, err)
	}
	return sess, proj, nil
}

// ensureWorkerRepository returns the project's worker repository, creating
// the remote repository and uploading the current CI version on first use.
// The external-variable permission is re-verified on every resolution;
// failure of that side check never aborts.
func (t *PipelineTrigger) ensureWorkerRepository(ctx context.Context, proj *project.Project) (repohost.Host, *workerrepo.Repository, error) {
	hostURL, tokenRef, group, err := t.executorFor(proj)
	if err != nil {
		return nil, nil, err
	}
	token, err := t.vault.Resolve(tokenRef)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve executor token: %w", err)
	}
	host := t.hosts(hostURL, token)

	repo, err := t.store.GetWorkerRepositoryByProject(ctx, proj.ID)
	if err == nil {
		if vErr := host.EnablePipelineVariables(ctx, repo.RemoteID); vErr != nil {
			slog.Warn("verify pipeline variable permission",
				"repo", repo.RemotePath, "error", vErr)
		}
		return host, repo, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("load worker repository: %w", err)
	}

	name := "taskpilot-worker-" + proj.ID
	path := name
	if group != "" {
		path = group + "/" + name
	}

	remote, err := host.FindProject(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		remote, err = host.CreateProject(ctx, group, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ensure remote repository %s: %w", path, err)
	}

	if vErr := host.EnablePipelineVariables(ctx, remote.ID); vErr != nil {
		slog.Warn("enable pipeline variable permission",
			"repo", remote.Path, "error", vErr)
	}

	// Files must exist remotely before any execution references the version.
	staged := &workerrepo.Repository{
		RemoteID:       remote.ID,
		RemotePath:     remote.Path,
		CurrentVersion: t.cfg.CIVersion,
	}
	if _, err := t.syncer.UploadCIFiles(ctx, host, staged, t.cfg.CIVersion, false); err != nil {
		return nil, nil, fmt.Errorf("upload ci files: %w", err)
	}

	repo, err = t.store.CreateWorkerRepository(ctx, workerrepo.CreateRequest{
		ProjectID:      proj.ID,
		HostURL:        hostURL,
		RemoteID:       remote.ID,
		RemotePath:     remote.Path,
		TokenSecretRef: tokenRef,
		CurrentVersion: t.cfg.CIVersion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist worker repository: %w", err)
	}

	slog.Info("worker repository created",
		"project_id", proj.ID, "repo", remote.Path, "version", t.cfg.CIVersion)
	return host, repo, nil
}

// executorFor picks the project's executor configuration, falling back to
// environment defaults. Neither configured is a precondition failure.
func (t *PipelineTrigger) executorFor(proj *project.Project) (hostURL, tokenRef, group string, err error) {
	if proj.Executor != nil && proj.Executor.HostURL != "" {
		return proj.Executor.HostURL, proj.Executor.TokenSecretRef, proj.Executor.GroupPath, nil
	}
	if t.executor.HostURL != "" && t.executor.TokenSecretRef != "" {
		return t.executor.HostURL, t.executor.TokenSecretRef, t.executor.GroupPath, nil
	}
	return "", "", "", fmt.Errorf("project %s has no executor and no environment defaults: %w",
		proj.ID, domain.ErrPrecondition)
}

// composeVariables builds the trigger's variable set and validates the
// runner is enabled with a usable credential before any remote call.
// The project-level credential always takes precedence; the shared platform
// credential is a quota-gated fallback.
func (t *PipelineTrigger) composeVariables(ctx context.Context, sess *session.Session, proj *project.Project, repo *workerrepo.Repository) (map[string]string, bool, error) {
	rt := sess.RunnerType
	if !t.enabled[rt] {
		return nil, false, fmt.Errorf("runner type %q is disabled: %w", rt, domain.ErrPrecondition)
	}

	var key, model, proxy string
	usedShared := false
	if ai := proj.AIProvider(rt); ai != nil && ai.KeySecretRef != "" {
		resolved, err := t.vault.Resolve(ai.KeySecretRef)
		if err != nil {
			return nil, false, fmt.Errorf("credential for runner %q unavailable (%v): %w",
				rt, err, domain.ErrPrecondition)
		}
		key, model, proxy = resolved, ai.Model, ai.ProxyURL
	} else {
		remaining, err := t.store.QuotaRemaining(ctx, proj.OwnerID)
		if err != nil {
			return nil, false, fmt.Errorf("check shared credential quota: %w", err)
		}
		if remaining <= 0 {
			return nil, false, fmt.Errorf("shared credential quota exhausted for owner %s: %w",
				proj.OwnerID, domain.ErrPrecondition)
		}
		key = t.vault.Get("platform/ai/" + string(rt))
		usedShared = true
	}
	if key == "" {
		return nil, false, fmt.Errorf("no credential available for runner %q: %w", rt, domain.ErrPrecondition)
	}

	vars := map[string]string{
		"TASKPILOT_SESSION_ID":   sess.ID,
		"TASKPILOT_PROJECT_ID":   proj.ID,
		"TASKPILOT_RUNNER_TYPE":  string(rt),
		"TASKPILOT_CI_VERSION":   repo.CurrentVersion,
		"TASKPILOT_AI_API_KEY":   key,
		"TASKPILOT_CALLBACK_URL": t.cfg.CallbackBaseURL + "/api/v1/sessions/" + sess.ID + "/pipeline-result",
		"TASKPILOT_API_TOKEN":    t.vault.Get("api/callback"),
	}
	if model != "" {
		vars["TASKPILOT_AI_MODEL"] = model
	}
	if proxy == "" {
		proxy = t.cfg.ProxyURL
	}
	if proxy != "" {
		vars["TASKPILOT_PROXY_URL"] = proxy
	}
	if proj.Space != nil {
		vars["TASKPILOT_SPACE_CLONE_URL"] = proj.Space.CloneURL
		vars["TASKPILOT_SPACE_BRANCH"] = "task-" + sess.TaskID
	}
	if t.cfg.MockMode {
		vars["TASKPILOT_MOCK_MODE"] = strconv.FormatBool(true)
	}
	return vars, usedShared, nil
}
