package project

import (
	"testing"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

func TestResolveWorkerType(t *testing.T) {
	p := &Project{WorkerType: worker.TypeQueue}

	if got := p.ResolveWorkerType(""); got != worker.TypeQueue {
		t.Fatalf("no override: got %s", got)
	}
	if got := p.ResolveWorkerType(worker.TypePipeline); got != worker.TypeQueue {
		t.Fatalf("override without permission should be ignored, got %s", got)
	}

	p.AllowOverride = true
	if got := p.ResolveWorkerType(worker.TypePipeline); got != worker.TypePipeline {
		t.Fatalf("allowed override: got %s", got)
	}
}

func TestWorkspaceDir(t *testing.T) {
	s := &SpaceConfig{CloneURL: "https://gitlab.example.com/team/demo.git", Dir: "custom"}
	if got := s.WorkspaceDir(); got != "custom" {
		t.Fatalf("explicit dir: got %q", got)
	}

	s.Dir = ""
	if got := s.WorkspaceDir(); got != "demo" {
		t.Fatalf("derived dir: got %q", got)
	}

	s.CloneURL = "not a url"
	if got := s.WorkspaceDir(); got != "" {
		t.Fatalf("unparseable url: got %q", got)
	}
}

func TestAIProvider(t *testing.T) {
	p := &Project{AIProviders: []AIProviderConfig{
		{Runner: worker.RunnerClaude, KeySecretRef: "secret/claude"},
	}}

	if got := p.AIProvider(worker.RunnerClaude); got == nil || got.KeySecretRef != "secret/claude" {
		t.Fatalf("expected claude provider, got %+v", got)
	}
	if got := p.AIProvider(worker.RunnerGemini); got != nil {
		t.Fatalf("expected nil for unconfigured runner, got %+v", got)
	}
}
