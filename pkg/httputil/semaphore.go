package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds concurrent operations. The pipeline uses one instance to
// cap in-flight scoring calls and another to cap fire-and-forget audit
// writes.
type Semaphore struct {
	slots   chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity (minimum 1).
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// TryAcquire grabs a slot without blocking. A false return counts toward
// DroppedCount; use it where shedding load is acceptable.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Acquire blocks until a slot frees up or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Call exactly once per successful acquire.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// DroppedCount reports operations shed by TryAcquire, a backpressure
// indicator for the health endpoint.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}

// InUse reports slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.slots)
}
