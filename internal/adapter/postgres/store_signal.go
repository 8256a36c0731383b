package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/signal"
)

// GetSignal returns the signal record for (source, issueID).
func (s *Store) GetSignal(ctx context.Context, source, issueID string) (*signal.Record, error) {
	var r signal.Record
	var lastProcessed, lockExpires *time.Time
	var taskID, lockedBy *string
	err := s.pool.QueryRow(ctx,
		`SELECT source, issue_id, status, task_id, last_processed_at, locked_by, lock_expires_at
		 FROM issue_signals WHERE source = $1 AND issue_id = $2`,
		source, issueID).Scan(&r.Source, &r.IssueID, &r.Status, &taskID, &lastProcessed, &lockedBy, &lockExpires)
	if err != nil {
		return nil, notFoundWrap(err, "get signal %s/%s", source, issueID)
	}
	if taskID != nil {
		r.TaskID = *taskID
	}
	if lockedBy != nil {
		r.LockedBy = *lockedBy
	}
	if lastProcessed != nil {
		r.LastProcessedAt = *lastProcessed
	}
	if lockExpires != nil {
		r.LockExpiresAt = *lockExpires
	}
	return &r, nil
}

// IsSignaledSince reports whether the issue was last processed at or after
// the given instant.
func (s *Store) IsSignaledSince(ctx context.Context, source, issueID string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM issue_signals
		   WHERE source = $1 AND issue_id = $2 AND last_processed_at >= $3
		 )`, source, issueID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check signal %s/%s: %w", source, issueID, err)
	}
	return exists, nil
}

// TryAcquireLock claims the issue for holder in a single conditional upsert.
// The claim succeeds when no record exists, no holder is set, or the prior
// claim has expired; otherwise zero rows are affected and false is returned.
func (s *Store) TryAcquireLock(ctx context.Context, source, issueID, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO issue_signals (source, issue_id, status, locked_by, lock_expires_at)
		 VALUES ($1, $2, 'processing', $3, NOW() + $4)
		 ON CONFLICT (source, issue_id) DO UPDATE
		 SET status = 'processing',
		     locked_by = EXCLUDED.locked_by,
		     lock_expires_at = EXCLUDED.lock_expires_at
		 WHERE issue_signals.locked_by IS NULL
		    OR issue_signals.lock_expires_at < NOW()`,
		source, issueID, holder, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s/%s: %w", source, issueID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Signal stamps a completed run and implicitly releases the lock.
func (s *Store) Signal(ctx context.Context, source, issueID string, processedAt time.Time, taskID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO issue_signals (source, issue_id, status, task_id, last_processed_at)
		 VALUES ($1, $2, 'completed', $3, $4)
		 ON CONFLICT (source, issue_id) DO UPDATE
		 SET status = 'completed',
		     task_id = EXCLUDED.task_id,
		     last_processed_at = EXCLUDED.last_processed_at,
		     locked_by = NULL,
		     lock_expires_at = NULL`,
		source, issueID, nullIfEmpty(taskID), processedAt)
	if err != nil {
		return fmt.Errorf("signal %s/%s: %w", source, issueID, err)
	}
	return nil
}

// ReleaseLock clears the lock if holder still owns it. Releasing a lock that
// expired and was re-acquired by someone else is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, source, issueID, holder string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE issue_signals
		 SET locked_by = NULL, lock_expires_at = NULL
		 WHERE source = $1 AND issue_id = $2 AND locked_by = $3`,
		source, issueID, holder)
	if err != nil {
		return fmt.Errorf("release lock %s/%s: %w", source, issueID, err)
	}
	return nil
}
