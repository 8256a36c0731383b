package git

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	const limit = 2
	const workers = 8
	pool := NewPool(limit)

	var running, peak atomic.Int32
	done := make(chan struct{}, workers)

	for range workers {
		go func() {
			defer func() { done <- struct{}{} }()
			err := pool.Run(context.Background(), func() error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}
	for range workers {
		<-done
	}

	if p := peak.Load(); p > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", p, limit)
	}
}

func TestPoolCancelledWhileWaiting(t *testing.T) {
	pool := NewPool(1)

	occupied := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Run(ctx, func() error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestNilPoolRunsDirectly(t *testing.T) {
	var pool *Pool
	ran := false
	if err := pool.Run(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
}
