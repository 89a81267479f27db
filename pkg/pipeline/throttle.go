package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// LoadThrottle limits how many media index fetches run at once.
type LoadThrottle struct {
	sem *semaphore.Weighted
}

// NewLoadThrottle creates a throttle admitting limit concurrent holders.
func NewLoadThrottle(limit int) *LoadThrottle {
	return &LoadThrottle{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a slot is free or ctx is done.
func (t *LoadThrottle) Acquire(ctx context.Context) error {
	err := t.sem.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThrottleWait, context.Cause(ctx))
	}

	return nil
}

// Release frees a slot taken by Acquire.
func (t *LoadThrottle) Release() {
	t.sem.Release(1)
}
