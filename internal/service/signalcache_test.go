package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain"
)

// memCache is a minimal cache.Cache for exercising the fast path.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestIsSignaledBeforeUnseenIssue(t *testing.T) {
	sc := NewSignalCache(newFakeStore(), nil, time.Minute)

	done, err := sc.IsSignaledBefore(context.Background(), "gitlab", "42", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Fatal("unseen issue must not be signaled")
	}
}

func TestSignalThenSkipUnchangedTimestamp(t *testing.T) {
	ctx := context.Background()
	sc := NewSignalCache(newFakeStore(), nil, time.Minute)
	t0 := time.Now().Truncate(time.Second)

	if err := sc.Signal(ctx, "gitlab", "42", t0, "task-1"); err != nil {
		t.Fatalf("signal: %v", err)
	}

	done, err := sc.IsSignaledBefore(ctx, "gitlab", "42", t0)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("unchanged updatedAt must be skipped")
	}

	done, err = sc.IsSignaledBefore(ctx, "gitlab", "42", t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("advanced updatedAt must not be skipped")
	}
}

func TestSignalReleasesLock(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sc := NewSignalCache(store, nil, time.Minute)

	if err := sc.AcquireLock(ctx, "gitlab", "42", "w1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := sc.Signal(ctx, "gitlab", "42", time.Now(), "task-1"); err != nil {
		t.Fatal(err)
	}

	// The lock is gone, so a different holder can acquire immediately.
	if err := sc.AcquireLock(ctx, "gitlab", "42", "w2", time.Minute); err != nil {
		t.Fatalf("reacquire after signal: %v", err)
	}
}

func TestLockContention(t *testing.T) {
	ctx := context.Background()
	sc := NewSignalCache(newFakeStore(), nil, time.Minute)

	if err := sc.AcquireLock(ctx, "gitlab", "42", "w1", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	err := sc.AcquireLock(ctx, "gitlab", "42", "w2", time.Minute)
	if !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("contended acquire: want ErrLocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "w1") {
		t.Fatalf("contention error must name the holder, got %q", err)
	}

	if err := sc.ReleaseLock(ctx, "gitlab", "42", "w1"); err != nil {
		t.Fatal(err)
	}
	if err := sc.AcquireLock(ctx, "gitlab", "42", "w2", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestCachedTimestampShortCircuitsStore(t *testing.T) {
	ctx := context.Background()
	l1 := newMemCache()
	sc := NewSignalCache(newFakeStore(), l1, time.Minute)
	t0 := time.Now()

	if err := sc.Signal(ctx, "gitlab", "42", t0, "task-1"); err != nil {
		t.Fatal(err)
	}

	// The signal populated the cache; the dedup read is served from it.
	done, err := sc.IsSignaledBefore(ctx, "gitlab", "42", t0)
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if l1.gets != 1 {
		t.Fatalf("expected one cache read, got %d", l1.gets)
	}
}

func TestStaleCacheFallsThroughToStore(t *testing.T) {
	ctx := context.Background()
	l1 := newMemCache()
	store := newFakeStore()
	sc := NewSignalCache(store, l1, time.Minute)
	t0 := time.Now()

	if err := sc.Signal(ctx, "gitlab", "42", t0, "task-1"); err != nil {
		t.Fatal(err)
	}

	// A newer updatedAt than the cached stamp must consult the store.
	done, err := sc.IsSignaledBefore(ctx, "gitlab", "42", t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("newer revision must not be skipped on a stale cache hit")
	}
}
