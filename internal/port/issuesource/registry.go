package issuesource

import (
	"fmt"
	"sync"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
)

// Factory builds a Source from a project's source configuration. The token
// is already resolved from its secret reference by the caller.
type Factory func(cfg project.SourceConfig, token string) (Source, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an issue source factory available by type discriminator.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("issuesource: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Source for the config's type using the registered factory.
func New(cfg project.SourceConfig, token string) (Source, error) {
	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("issuesource: unknown source type %q", cfg.Type)
	}
	return factory(cfg, token)
}

// Available returns the names of all registered source types.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
