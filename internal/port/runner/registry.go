package runner

import (
	"fmt"
	"sync"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

// Factory builds a Runner for a runner type using opaque adapter config.
type Factory func(config map[string]string) (Runner, error)

var (
	mu        sync.RWMutex
	factories = make(map[worker.RunnerType]Factory)
)

// Register makes a runner factory available by runner type.
func Register(rt worker.RunnerType, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[rt]; exists {
		panic(fmt.Sprintf("runner: duplicate registration for %q", rt))
	}
	factories[rt] = factory
}

// New creates a Runner by type using the registered factory.
func New(rt worker.RunnerType, config map[string]string) (Runner, error) {
	mu.RLock()
	factory, ok := factories[rt]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("runner: unknown runner type %q", rt)
	}
	return factory(config)
}

// Available returns all registered runner types.
func Available() []worker.RunnerType {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]worker.RunnerType, 0, len(factories))
	for rt := range factories {
		types = append(types, rt)
	}
	return types
}
