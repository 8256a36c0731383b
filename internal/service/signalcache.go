package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/port/cache"
	"github.com/Strob0t/TaskPilot/internal/port/database"
)

// SignalCache is the dedup and mutual-exclusion layer over issue signals.
// The database row is the source of truth; an optional in-process cache
// cheapens the hot dedup read. Caching is safe because a signal's
// last-processed timestamp only ever moves forward: a cached timestamp that
// already satisfies the check can never become wrong.
type SignalCache struct {
	store database.Store
	l1    cache.Cache
	ttl   time.Duration
}

// NewSignalCache creates a SignalCache. l1 may be nil to disable the
// in-process fast path.
func NewSignalCache(store database.Store, l1 cache.Cache, ttl time.Duration) *SignalCache {
	return &SignalCache{store: store, l1: l1, ttl: ttl}
}

// IsSignaledBefore reports whether the issue was already processed at or
// after since. Used to skip issues whose remote updated-at has not advanced.
func (c *SignalCache) IsSignaledBefore(ctx context.Context, source, issueID string, since time.Time) (bool, error) {
	key := signalKey(source, issueID)

	if c.l1 != nil {
		if data, ok, _ := c.l1.Get(ctx, key); ok {
			if nanos, err := strconv.ParseInt(string(data), 10, 64); err == nil {
				if !time.Unix(0, nanos).Before(since) {
					return true, nil
				}
			}
		}
	}

	done, err := c.store.IsSignaledSince(ctx, source, issueID, since)
	if err != nil {
		return false, err
	}
	if done {
		// since is a lower bound on the row's last-processed timestamp, so
		// it is safe to cache: any later check against it stays correct.
		c.cacheProcessedAt(ctx, key, since)
	}
	return done, nil
}

// AcquireLock atomically claims the issue for holder. Contention is reported
// as ErrLocked with the current holder named. The ttl is a safety net against
// crashed holders, not a correctness mechanism: every failure path must still
// call ReleaseLock.
func (c *SignalCache) AcquireLock(ctx context.Context, source, issueID, holder string, ttl time.Duration) error {
	ok, err := c.store.TryAcquireLock(ctx, source, issueID, holder, ttl)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	owner := "unknown"
	if rec, gErr := c.store.GetSignal(ctx, source, issueID); gErr == nil && rec.LockedBy != "" {
		owner = rec.LockedBy
	}
	return fmt.Errorf("issue %s/%s held by %s: %w", source, issueID, owner, domain.ErrLocked)
}

// Signal stamps a successful run with processedAt and the created task,
// implicitly releasing the lock.
func (c *SignalCache) Signal(ctx context.Context, source, issueID string, processedAt time.Time, taskID string) error {
	if err := c.store.Signal(ctx, source, issueID, processedAt, taskID); err != nil {
		return err
	}
	c.cacheProcessedAt(ctx, signalKey(source, issueID), processedAt)
	return nil
}

// ReleaseLock clears the holder's own lock early so the issue can be
// retried before the ttl elapses.
func (c *SignalCache) ReleaseLock(ctx context.Context, source, issueID, holder string) error {
	return c.store.ReleaseLock(ctx, source, issueID, holder)
}

func (c *SignalCache) cacheProcessedAt(ctx context.Context, key string, at time.Time) {
	if c.l1 == nil || at.IsZero() {
		return
	}
	_ = c.l1.Set(ctx, key, []byte(strconv.FormatInt(at.UnixNano(), 10)), c.ttl)
}

func signalKey(source, issueID string) string {
	return "signal:" + source + "/" + issueID
}
