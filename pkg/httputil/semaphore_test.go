package httputil

import (
	"context"
	"testing"
	"time"
)

func TestSemaphoreTryAcquire(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() || !sem.TryAcquire() {
		t.Fatal("first two acquires should succeed")
	}
	if sem.TryAcquire() {
		t.Fatal("third acquire should fail at capacity 2")
	}
	if sem.DroppedCount() != 1 {
		t.Errorf("dropped = %d, want 1", sem.DroppedCount())
	}
	if sem.InUse() != 2 {
		t.Errorf("in use = %d, want 2", sem.InUse())
	}

	sem.Release()
	if !sem.TryAcquire() {
		t.Fatal("acquire should succeed after release")
	}
}

func TestSemaphoreAcquireBlocksUntilRelease(t *testing.T) {
	sem := NewSemaphore(1)
	sem.TryAcquire()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- sem.Acquire(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	sem.Release()

	if err := <-done; err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestSemaphoreAcquireHonorsContext(t *testing.T) {
	sem := NewSemaphore(1)
	sem.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sem.Acquire(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSemaphoreMinimumCapacity(t *testing.T) {
	sem := NewSemaphore(0)
	if !sem.TryAcquire() {
		t.Fatal("zero capacity should clamp to 1")
	}
	if sem.TryAcquire() {
		t.Fatal("clamped semaphore still bounds at 1")
	}
}
