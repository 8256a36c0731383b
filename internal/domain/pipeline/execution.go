// Package pipeline defines the PipelineExecution entity and its state machine.
package pipeline

import "time"

// Status of a remote CI pipeline execution.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a forward transition.
// Transitions only move forward; a retry creates a new execution record
// instead of resetting an old one.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next.Terminal()
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Execution records one invocation of a remote CI trigger.
// ExternalID stays empty until the trigger succeeds; the row always ends up
// either terminal-failed or holding a valid external pipeline id.
type Execution struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	WorkerRepoID string    `json:"worker_repo_id"`
	ExternalID   string    `json:"external_id,omitempty"`
	Status       Status    `json:"status"`
	StatusAt     time.Time `json:"status_at"`
	CreatedAt    time.Time `json:"created_at"`
}
