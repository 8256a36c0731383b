// Package filespace defines the file space port (interface): a clonable
// code repository with named per-task workspaces (branches).
package filespace

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
)

// Space is the port interface for workspace management.
type Space interface {
	// Name returns the space type identifier (e.g. "git").
	Name() string

	// Clone materializes the repository into dir.
	Clone(ctx context.Context, dir string) error

	// WorkspaceExists reports whether the named workspace exists in dir.
	WorkspaceExists(ctx context.Context, dir, name string) (bool, error)

	// CreateWorkspace creates and switches to a new named workspace.
	CreateWorkspace(ctx context.Context, dir, name string) error

	// SwitchToWorkspace switches dir to an existing named workspace.
	SwitchToWorkspace(ctx context.Context, dir, name string) error
}

// Factory builds a Space from a project's space configuration.
type Factory func(cfg project.SpaceConfig) (Space, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a file space factory available by type discriminator.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("filespace: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Space for the config's type using the registered factory.
func New(cfg project.SpaceConfig) (Space, error) {
	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("filespace: unknown space type %q", cfg.Type)
	}
	return factory(cfg)
}
