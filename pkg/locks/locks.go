package locks

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/btree"
)

var (
	ErrTimeout = errors.New("locks: acquisition timed out")
)

type zItem int32

func (z zItem) Less(than btree.Item) bool {
	return z < than.(zItem)
}

// WriteLocks is the logical mutual-exclusion manager for writers. Three
// resources live under one monitor: locked widget ids, locked individual
// z values, and a single range lock covering every z >= its bound.
//
// Callers acquire in the order id -> z -> range, and z values inside one
// call ascending, which keeps plain writers cycle-free. Operations that
// take id locks again while holding the range lock can still deadlock
// against each other; the timed variants exist so those callers back off
// and retry instead of waiting forever. Broad range operations can be
// outpaced by a stream of individual locks; that liveness gap is accepted.
type WriteLocks struct {
	mu        sync.Mutex
	ids       map[int32]struct{}
	zs        *btree.BTree
	rangeFrom int32
	rangeHeld bool
	bcast     chan struct{}
}

func New() *WriteLocks {
	return &WriteLocks{
		ids:   make(map[int32]struct{}),
		zs:    btree.New(8),
		bcast: make(chan struct{}),
	}
}

// broadcast wakes every waiter. Caller holds mu.
func (w *WriteLocks) broadcast() {
	close(w.bcast)
	w.bcast = make(chan struct{})
}

// wait blocks until the next broadcast or the deadline. A zero deadline
// waits forever. Caller holds mu; mu is held again on return. Returns
// false when the deadline passed without a broadcast.
func (w *WriteLocks) wait(deadline time.Time) bool {
	ch := w.bcast
	w.mu.Unlock()
	if deadline.IsZero() {
		<-ch
		w.mu.Lock()
		return true
	}
	d := time.Until(deadline)
	if d <= 0 {
		w.mu.Lock()
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		w.mu.Lock()
		return true
	case <-timer.C:
		w.mu.Lock()
		return false
	}
}

// LockID blocks until id is free, then takes it.
func (w *WriteLocks) LockID(id int32) {
	w.mu.Lock()
	for {
		if _, held := w.ids[id]; !held {
			break
		}
		w.wait(time.Time{})
	}
	w.ids[id] = struct{}{}
	w.mu.Unlock()
}

func (w *WriteLocks) zBlocked(z int32) bool {
	if w.rangeHeld && z > w.rangeFrom {
		return true
	}
	return w.zs.Has(zItem(z))
}

func (w *WriteLocks) lockZs(deadline time.Time, zs []int32) error {
	sorted := slices.Clone(zs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, z := range sorted {
		for w.zBlocked(z) {
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				w.releaseZsLocked(sorted[:i])
				return ErrTimeout
			}
			if !w.wait(deadline) && w.zBlocked(z) {
				w.releaseZsLocked(sorted[:i])
				return ErrTimeout
			}
		}
		w.zs.ReplaceOrInsert(zItem(z))
	}
	return nil
}

// LockZ takes every given z, ascending and deduplicated, waiting as long
// as it takes.
func (w *WriteLocks) LockZ(zs ...int32) {
	_ = w.lockZs(time.Time{}, zs)
}

// LockZTimeout is LockZ with a total time budget across all zs. On
// timeout the zs already taken by this call are released before
// ErrTimeout surfaces.
func (w *WriteLocks) LockZTimeout(timeout time.Duration, zs ...int32) error {
	return w.lockZs(time.Now().Add(timeout), zs)
}

func (w *WriteLocks) zLockedAbove(fromZ int32) bool {
	found := false
	w.zs.AscendGreaterOrEqual(zItem(fromZ), func(item btree.Item) bool {
		if int32(item.(zItem)) > fromZ {
			found = true
			return false
		}
		return true
	})
	return found
}

func (w *WriteLocks) lockRange(deadline time.Time, fromZ int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.rangeHeld || w.zLockedAbove(fromZ) {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		if !w.wait(deadline) && (w.rangeHeld || w.zLockedAbove(fromZ)) {
			return ErrTimeout
		}
	}
	w.rangeHeld = true
	w.rangeFrom = fromZ
	return nil
}

// LockRange takes the global range lock on all z >= fromZ. It waits for
// the current range holder and for any individual z lock above fromZ.
func (w *WriteLocks) LockRange(fromZ int32) {
	_ = w.lockRange(time.Time{}, fromZ)
}

func (w *WriteLocks) LockRangeTimeout(timeout time.Duration, fromZ int32) error {
	return w.lockRange(time.Now().Add(timeout), fromZ)
}

func (w *WriteLocks) ReleaseID(id int32) {
	w.mu.Lock()
	delete(w.ids, id)
	w.broadcast()
	w.mu.Unlock()
}

func (w *WriteLocks) releaseZsLocked(zs []int32) {
	for _, z := range zs {
		w.zs.Delete(zItem(z))
	}
	w.broadcast()
}

func (w *WriteLocks) ReleaseZ(zs ...int32) {
	w.mu.Lock()
	w.releaseZsLocked(zs)
	w.mu.Unlock()
}

func (w *WriteLocks) ReleaseRange() {
	w.mu.Lock()
	w.rangeHeld = false
	w.broadcast()
	w.mu.Unlock()
}

func (w *WriteLocks) Reset() {
	w.mu.Lock()
	w.ids = make(map[int32]struct{})
	w.zs = btree.New(8)
	w.rangeHeld = false
	w.broadcast()
	w.mu.Unlock()
}
