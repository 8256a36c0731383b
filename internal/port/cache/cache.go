// Package cache defines the in-process cache port used to cheapen hot reads.
// Nothing correctness-critical may live only in a cache; the database stays
// the source of truth.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
