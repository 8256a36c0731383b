package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/TaskPilot/internal/config"
	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/domain/pipeline"
	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/domain/session"
	"github.com/Strob0t/TaskPilot/internal/domain/task"
	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/domain/workerrepo"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
)

type triggerFixture struct {
	store   *fakeStore
	host    *fakeHost
	trigger *PipelineTrigger
	session *session.Session
	project *project.Project
}

func newTriggerFixture(t *testing.T, proj *project.Project) *triggerFixture {
	t.Helper()

	store := newFakeStore()
	store.projects[proj.ID] = proj

	tk, err := store.CreateTask(context.Background(), task.CreateRequest{
		ProjectID: proj.ID, Title: "fix login", IssueProvider: "gitlab", IssueID: "42",
	})
	if err != nil {
		t.Fatal(err)
	}
	sess, err := store.CreateSession(context.Background(), session.CreateRequest{
		TaskID: tk.ID, RunnerType: worker.RunnerClaude,
	})
	if err != nil {
		t.Fatal(err)
	}

	host := newFakeHost()
	vault := newTestVault(t, map[string]string{
		"executor/token":     "glpat-x",
		"ai/claude":          "sk-project",
		"platform/ai/claude": "sk-shared",
		"api/callback":       "cb-token",
	})

	cfg := config.Pipeline{
		Attempts:       3,
		InitialBackoff: 5 * time.Millisecond,
		CIVersion:      "v1",
	}
	executor := config.Executor{
		HostURL:        "https://git.example.com",
		TokenSecretRef: "executor/token",
		GroupPath:      "taskpilot",
	}

	syncer := NewWorkerRepositorySynchronizer(store)
	trigger := NewPipelineTrigger(store, vault, syncer,
		func(_, _ string) repohost.Host { return host },
		cfg, executor, []string{"claude", "codex"})

	return &triggerFixture{store: store, host: host, trigger: trigger, session: sess, project: proj}
}

func projectWithCredential() *project.Project {
	return &project.Project{
		ID:      "p1",
		Name:    "demo",
		OwnerID: "u1",
		Enabled: true,
		AIProviders: []project.AIProviderConfig{
			{Runner: worker.RunnerClaude, KeySecretRef: "ai/claude"},
		},
	}
}

func TestTriggerSuccessCreatesRepoAndExecution(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	ctx := context.Background()

	exec, err := f.trigger.Trigger(ctx, f.session.ID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if exec.Status != pipeline.StatusRunning || exec.ExternalID != "pipe-1" {
		t.Fatalf("execution: %+v", exec)
	}

	repo, err := f.store.GetWorkerRepositoryByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("worker repository should be lazily created: %v", err)
	}
	if repo.CurrentVersion != "v1" {
		t.Fatalf("repo version: %q", repo.CurrentVersion)
	}
	// CI files were uploaded before the record was persisted.
	if len(f.host.remoteFiles) == 0 {
		t.Fatal("ci files missing from remote")
	}
	if f.host.variablesCalls == 0 {
		t.Fatal("pipeline variable permission should be verified")
	}
}

func TestTriggerRetryBound(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	f.host.triggerErrs = []error{
		&statusErr{code: 502}, &statusErr{code: 502}, &statusErr{code: 502},
	}

	exec, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if f.host.triggerCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.host.triggerCalls)
	}

	got, gErr := f.store.GetPipelineExecution(context.Background(), exec.ID)
	if gErr != nil {
		t.Fatal(gErr)
	}
	if got.Status != pipeline.StatusFailed {
		t.Fatalf("execution must end failed, got %q", got.Status)
	}
}

func TestTriggerNonRetryableShortCircuits(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	f.host.triggerErrs = []error{&statusErr{code: 403}}

	_, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.host.triggerCalls != 1 {
		t.Fatalf("non-retryable failure must consume exactly 1 attempt, got %d", f.host.triggerCalls)
	}
}

func TestTriggerRecoversAfterTransientFailure(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	f.host.triggerErrs = []error{&statusErr{code: 500}, nil}

	exec, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if err != nil {
		t.Fatalf("trigger should recover: %v", err)
	}
	if f.host.triggerCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.host.triggerCalls)
	}
	if exec.ExternalID == "" {
		t.Fatal("external pipeline id missing")
	}
}

func TestTriggerNoExecutorIsPrecondition(t *testing.T) {
	proj := projectWithCredential()
	f := newTriggerFixture(t, proj)
	// Remove the environment defaults.
	f.trigger.executor = config.Executor{}

	_, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if f.host.triggerCalls != 0 {
		t.Fatal("no remote trigger may be attempted")
	}
}

func TestTriggerDisabledRunnerIsPrecondition(t *testing.T) {
	proj := projectWithCredential()
	f := newTriggerFixture(t, proj)
	f.session.RunnerType = worker.RunnerGemini
	f.store.sessions[f.session.ID].RunnerType = worker.RunnerGemini

	_, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if f.host.triggerCalls != 0 {
		t.Fatal("no remote trigger may be attempted")
	}
}

func TestTriggerProjectCredentialPrecedesShared(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	// Owner has zero quota; the project credential must still work because
	// quota only gates the shared fallback.
	f.store.quota["u1"] = 0

	if _, err := f.trigger.Trigger(context.Background(), f.session.ID); err != nil {
		t.Fatalf("project credential must take precedence: %v", err)
	}
	if f.store.quotaUsed["u1"] != 0 {
		t.Fatal("quota must not be consumed for project credentials")
	}
}

func TestTriggerSharedCredentialConsumesQuota(t *testing.T) {
	proj := projectWithCredential()
	proj.AIProviders = nil
	f := newTriggerFixture(t, proj)
	f.store.quota["u1"] = 5

	if _, err := f.trigger.Trigger(context.Background(), f.session.ID); err != nil {
		t.Fatalf("shared credential path: %v", err)
	}
	if f.store.quotaUsed["u1"] != 1 {
		t.Fatalf("quota usage: %d", f.store.quotaUsed["u1"])
	}
}

func TestTriggerQuotaExhaustedIsPrecondition(t *testing.T) {
	proj := projectWithCredential()
	proj.AIProviders = nil
	f := newTriggerFixture(t, proj)
	f.store.quota["u1"] = 0

	_, err := f.trigger.Trigger(context.Background(), f.session.ID)
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestTriggerReusesExistingRepo(t *testing.T) {
	f := newTriggerFixture(t, projectWithCredential())
	ctx := context.Background()

	if _, err := f.store.CreateWorkerRepository(ctx, workerrepo.CreateRequest{
		ProjectID: "p1", RemoteID: "r-9", RemotePath: "taskpilot/existing", CurrentVersion: "v1",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.trigger.Trigger(ctx, f.session.ID); err != nil {
		t.Fatal(err)
	}
	if len(f.host.projects) != 0 {
		t.Fatal("no remote project may be created when a repo exists")
	}
	if f.host.variablesCalls == 0 {
		t.Fatal("permission re-verified on every resolution")
	}
}
