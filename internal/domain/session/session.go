// Package session defines the Session and Message domain entities.
//
// A Session is one execution attempt of a Task by a specific runner. A task
// may accumulate several sessions (retries, evaluation then implementation).
// Each session owns an append-only, arrival-ordered stream of messages
// emitted by the runner, kept for audit and replay.
package session

import (
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

// Session is one execution attempt of a Task.
type Session struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id,omitempty"`
	RunnerType worker.RunnerType `json:"runner_type"`
	// ExecutedBy records the routing decision so status queries reflect it
	// even before the dispatched message is consumed.
	ExecutedBy worker.Type `json:"executed_by_worker_type,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new session.
type CreateRequest struct {
	TaskID     string            `json:"task_id,omitempty"`
	RunnerType worker.RunnerType `json:"runner_type"`
}

// Message is one opaque chunk emitted by a runner during a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
