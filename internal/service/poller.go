package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/TaskPilot/internal/port/database"
)

// Poller sweeps all enabled projects on a fixed interval. Multiple poller
// processes may run concurrently; they coordinate exclusively through the
// SignalCache's atomic lock, never through shared memory.
type Poller struct {
	store     database.Store
	processor *IssueProcessor
	interval  time.Duration
	workerID  string
}

// NewPoller creates a poller.
func NewPoller(store database.Store, processor *IssueProcessor, interval time.Duration, workerID string) *Poller {
	return &Poller{
		store:     store,
		processor: processor,
		interval:  interval,
		workerID:  workerID,
	}
}

// Run sweeps immediately and then on every interval tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller started", "worker_id", p.workerID, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", "worker_id", p.workerID)
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep processes every enabled project once. Per-project failures are
// logged and do not stop the sweep.
func (p *Poller) sweep(ctx context.Context) {
	projects, err := p.store.ListEnabledProjects(ctx)
	if err != nil {
		slog.Error("list enabled projects", "error", err)
		return
	}

	for i := range projects {
		if ctx.Err() != nil {
			return
		}
		if err := p.processor.ProcessProject(ctx, &projects[i]); err != nil {
			slog.Error("process project",
				"project_id", projects[i].ID, "error", err)
		}
	}
}
