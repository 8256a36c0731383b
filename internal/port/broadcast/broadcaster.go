// Package broadcast defines the port for broadcasting real-time events to connected clients.
package broadcast

import "context"

// Event type constants.
const (
	EventTaskStatus     = "task.status"
	EventSessionOutput  = "session.output"
	EventPipelineStatus = "pipeline.status"
)

// TaskStatusEvent is broadcast when a task's status changes.
type TaskStatusEvent struct {
	TaskID     string `json:"task_id"`
	ProjectID  string `json:"project_id"`
	Status     string `json:"status"`
	WorkerType string `json:"worker_type,omitempty"`
}

// SessionOutputEvent is broadcast when a runner emits a chunk during a session.
type SessionOutputEvent struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"` // "status", "progress", "result", "error"
	Text      string `json:"text"`
}

// PipelineStatusEvent is broadcast when a pipeline execution changes status.
type PipelineStatusEvent struct {
	ExecutionID string `json:"execution_id"`
	SessionID   string `json:"session_id"`
	PipelineID  string `json:"pipeline_id,omitempty"`
	Status      string `json:"status"`
}

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
