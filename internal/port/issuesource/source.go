// Package issuesource defines the issue source port (interface) for the
// external trackers that seed tasks (GitLab, GitHub, Jira).
package issuesource

import (
	"context"
	"iter"
	"time"
)

// Issue is one external tracker item.
type Issue struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	// UniqueID is stable across polls and scoped to the provider; it keys
	// the dedup/lock record.
	UniqueID string            `json:"unique_id"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Source is the port interface for listing work items from a tracker.
type Source interface {
	// Name returns the provider identifier (e.g. "gitlab", "jira").
	Name() string

	// Issues returns a lazy sequence of open issues. The sequence is
	// restarted from scratch on every poll; iteration stops early when the
	// yield function returns false or ctx is done.
	Issues(ctx context.Context) iter.Seq2[Issue, error]
}
