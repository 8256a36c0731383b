// Package gitcli implements the filespace.Space interface using local git CLI
// commands. Workspaces map to branches.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/git"
)

const spaceName = "git"

// Space manages per-task branch workspaces in a cloned git repository.
type Space struct {
	cloneURL string
	pool     *git.Pool
}

// NewSpace creates a Space cloning from cfg.CloneURL, limiting concurrent git
// operations via pool.
func NewSpace(cfg project.SpaceConfig, pool *git.Pool) *Space {
	return &Space{cloneURL: cfg.CloneURL, pool: pool}
}

// Name returns "git".
func (s *Space) Name() string { return spaceName }

// Clone materializes the repository into dir. A dir that already holds a git
// checkout is left alone.
func (s *Space) Clone(ctx context.Context, dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("gitcli: resolve path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		return nil
	}

	return s.pool.Run(ctx, func() error {
		if _, execErr := runGit(ctx, "", "clone", s.cloneURL, absPath); execErr != nil {
			return fmt.Errorf("gitcli: clone: %w", execErr)
		}
		return nil
	})
}

// WorkspaceExists reports whether a local branch with the given name exists.
func (s *Space) WorkspaceExists(ctx context.Context, dir, name string) (bool, error) {
	var exists bool
	err := s.pool.Run(ctx, func() error {
		out, err := runGit(ctx, dir, "branch", "--list", name)
		if err != nil {
			return fmt.Errorf("gitcli: list branches: %w", err)
		}
		exists = strings.TrimSpace(out) != ""
		return nil
	})
	return exists, err
}

// CreateWorkspace creates and switches to a new branch.
func (s *Space) CreateWorkspace(ctx context.Context, dir, name string) error {
	return s.pool.Run(ctx, func() error {
		if _, err := runGit(ctx, dir, "checkout", "-b", name); err != nil {
			return fmt.Errorf("gitcli: create workspace %s: %w", name, err)
		}
		return nil
	})
}

// SwitchToWorkspace switches dir to an existing branch.
func (s *Space) SwitchToWorkspace(ctx context.Context, dir, name string) error {
	return s.pool.Run(ctx, func() error {
		if _, err := runGit(ctx, dir, "checkout", name); err != nil {
			return fmt.Errorf("gitcli: switch to workspace %s: %w", name, err)
		}
		return nil
	})
}

// runGit executes a git command and returns its stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
