package service

import (
	"fmt"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

// RunnerSelector spreads load across runner types with a stateful round
// robin over a fixed, validated list. It is not safe for concurrent use:
// the single-poller-per-process model serializes access, and a
// multi-goroutine host must shard selectors or guard this one.
type RunnerSelector struct {
	types  []worker.RunnerType
	cursor int
}

// NewRunnerSelector validates the configured runner type names and builds a
// selector over them.
func NewRunnerSelector(names []string) (*RunnerSelector, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("runner selector: no runner types configured")
	}

	types := make([]worker.RunnerType, 0, len(names))
	for _, name := range names {
		rt, err := worker.ParseRunnerType(name)
		if err != nil {
			return nil, fmt.Errorf("runner selector: %w", err)
		}
		types = append(types, rt)
	}
	return &RunnerSelector{types: types}, nil
}

// Select returns the next runner type and advances the cursor.
func (s *RunnerSelector) Select() worker.RunnerType {
	rt := s.types[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.types)
	return rt
}
