// Package signal defines the SignalRecord dedup/lock entity.
package signal

import "time"

// Status of the last processing attempt recorded for an issue.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Record marks that an issue has been processed and, while held, that a
// worker owns the exclusive right to process it. Keyed by (source, issue id).
// At most one non-expired holder exists per key at any time.
type Record struct {
	Source          string    `json:"source"`
	IssueID         string    `json:"issue_id"`
	Status          Status    `json:"status"`
	TaskID          string    `json:"task_id,omitempty"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	LockedBy        string    `json:"locked_by,omitempty"`
	LockExpiresAt   time.Time `json:"lock_expires_at,omitempty"`
}
