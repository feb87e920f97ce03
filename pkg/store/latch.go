package store

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// latchWeight bounds concurrent shared holders; clear takes all of it.
const latchWeight = 1 << 30

// globalLatch is the store-wide coordination latch. Reads and writes both
// take the shared side, so they never contend with each other here; only
// clear takes the exclusive side, which gives it a full barrier against
// everything else.
type globalLatch struct {
	sem *semaphore.Weighted
}

func newGlobalLatch() *globalLatch {
	return &globalLatch{sem: semaphore.NewWeighted(latchWeight)}
}

func (l *globalLatch) rlock() {
	// background context: the shared side never blocks long enough to
	// warrant cancellation
	_ = l.sem.Acquire(context.Background(), 1)
}

func (l *globalLatch) runlock() {
	l.sem.Release(1)
}

// lock acquires the exclusive side, honoring ctx cancellation.
func (l *globalLatch) lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, latchWeight)
}

func (l *globalLatch) unlock() {
	l.sem.Release(latchWeight)
}
