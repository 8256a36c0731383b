// Package worker defines the canonical worker-type and runner-type enumerations.
//
// WorkerType names a dispatch backend; RunnerType names a coding agent. The
// two are deliberately separate: gemini and codex are runner variants carried
// inside a queue message or pipeline variable set, never backends of their own.
package worker

import "fmt"

// Type is the dispatch backend that executes a task.
type Type string

const (
	// TypeQueue dispatches the task as a persistent queue message consumed
	// by an agent worker pool.
	TypeQueue Type = "queue"
	// TypePipeline triggers a remote CI pipeline that runs the task.
	TypePipeline Type = "pipeline"
	// TypeSDK leaves the task for a polling SDK worker to pick up in-process.
	TypeSDK Type = "sdk"
)

// ParseType validates a worker type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeQueue, TypePipeline, TypeSDK:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown worker type %q", s)
}

// RunnerType identifies a coding agent backend.
type RunnerType string

const (
	RunnerClaude RunnerType = "claude"
	RunnerCodex  RunnerType = "codex"
	RunnerGemini RunnerType = "gemini"
)

// ParseRunnerType validates a runner type string.
func ParseRunnerType(s string) (RunnerType, error) {
	switch RunnerType(s) {
	case RunnerClaude, RunnerCodex, RunnerGemini:
		return RunnerType(s), nil
	}
	return "", fmt.Errorf("unknown runner type %q", s)
}
