package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("queue max_retries default: got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Pipeline.Attempts != 3 || cfg.Pipeline.InitialBackoff != 2*time.Second {
		t.Errorf("pipeline retry defaults: got %d / %s", cfg.Pipeline.Attempts, cfg.Pipeline.InitialBackoff)
	}
	if cfg.Poller.LockTimeout != 10*time.Minute {
		t.Errorf("lock timeout default: got %s", cfg.Poller.LockTimeout)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskpilot.yaml")
	yml := `
poller:
  interval: 30s
  worker_id: worker-a
queue:
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poller.Interval != 30*time.Second {
		t.Errorf("interval: got %s", cfg.Poller.Interval)
	}
	if cfg.Poller.WorkerID != "worker-a" {
		t.Errorf("worker id: got %q", cfg.Poller.WorkerID)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("max_retries: got %d", cfg.Queue.MaxRetries)
	}
	// Untouched sections keep their defaults.
	if cfg.Queue.Prefetch != 4 {
		t.Errorf("prefetch default: got %d", cfg.Queue.Prefetch)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskpilot.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  max_retries: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TASKPILOT_QUEUE_MAX_RETRIES", "7")
	t.Setenv("TASKPILOT_RUNNERS", "claude, gemini")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.MaxRetries != 7 {
		t.Errorf("env override: got %d", cfg.Queue.MaxRetries)
	}
	if len(cfg.Runners.Enabled) != 2 || cfg.Runners.Enabled[1] != "gemini" {
		t.Errorf("runners env: got %v", cfg.Runners.Enabled)
	}
}

func TestValidateRejectsBadRunner(t *testing.T) {
	cfg := Defaults()
	cfg.Runners.Enabled = []string{"claude", "sonnet"}
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for unknown runner type")
	}
}

func TestValidateRejectsZeroRetry(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline.Attempts = 0
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for zero pipeline attempts")
	}
}
