// Package task defines the Task domain entity.
package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is a unit of work derived from one external issue.
type Task struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status"`
	IssueProvider string    `json:"issue_provider"`
	IssueID       string    `json:"issue_id"`
	SpaceID       string    `json:"space_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	ProjectID     string `json:"project_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	IssueProvider string `json:"issue_provider"`
	IssueID       string `json:"issue_id"`
	SpaceID       string `json:"space_id,omitempty"`
}
