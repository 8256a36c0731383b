package gitcli

import (
	"sync/atomic"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/git"
	"github.com/Strob0t/TaskPilot/internal/port/filespace"
)

// sharedPool is the process-wide git concurrency limit, set once from main.
// A nil pool means unbounded.
var sharedPool atomic.Pointer[git.Pool]

// SetPool installs the pool used by spaces created through the registry.
func SetPool(pool *git.Pool) {
	sharedPool.Store(pool)
}

func init() {
	filespace.Register(spaceName, func(cfg project.SpaceConfig) (filespace.Space, error) {
		return NewSpace(cfg, sharedPool.Load()), nil
	})
}
