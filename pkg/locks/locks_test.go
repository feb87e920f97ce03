package locks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleLockAndRelease(t *testing.T) {
	w := New()
	w.LockID(1)
	w.LockZ(1, 2)
	w.LockRange(2)

	w.ReleaseRange()
	w.ReleaseZ(1, 2)
	w.ReleaseID(1)
}

func TestZDedupedAndReleased(t *testing.T) {
	w := New()
	w.LockZ(3, 3, 1)
	w.ReleaseZ(3, 1)

	done := make(chan struct{})
	go func() {
		w.LockZ(1, 3)
		w.ReleaseZ(1, 3)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks were not fully released")
	}
}

func TestBlockingOnRangeConflict(t *testing.T) {
	w := New()
	w.LockRange(2)

	done := make(chan struct{})
	go func() {
		// 1 <= range bound so it passes; 3 is covered and must wait
		w.LockZ(3, 1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("z lock should have blocked on the range lock")
	case <-time.After(100 * time.Millisecond):
	}

	w.ReleaseRange()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("z lock did not wake after range release")
	}
}

func TestRangeWaitsForHigherZ(t *testing.T) {
	w := New()
	w.LockZ(10)

	done := make(chan struct{})
	go func() {
		w.LockRange(5)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("range lock should have waited for z=10")
	case <-time.After(100 * time.Millisecond):
	}

	w.ReleaseZ(10)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("range lock did not wake after z release")
	}
}

func TestRangeIgnoresZAtBound(t *testing.T) {
	w := New()
	w.LockZ(5)

	done := make(chan struct{})
	go func() {
		w.LockRange(5)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("z == bound must not block the range lock")
	}
}

func TestZTimeout(t *testing.T) {
	w := New()
	w.LockZ(1)

	err := w.LockZTimeout(50*time.Millisecond, 1)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestZTimeoutReleasesPartialAcquisitions(t *testing.T) {
	w := New()
	w.LockZ(5)

	// 2 and 3 get taken, then 5 times out and both must come back
	err := w.LockZTimeout(50*time.Millisecond, 5, 3, 2)
	require.ErrorIs(t, err, ErrTimeout)

	require.Nil(t, w.LockZTimeout(50*time.Millisecond, 2, 3))
	w.ReleaseZ(2, 3)
}

func TestRangeTimeout(t *testing.T) {
	w := New()
	w.LockRange(0)

	err := w.LockRangeTimeout(50*time.Millisecond, 10)
	assert.ErrorIs(t, err, ErrTimeout)

	w.ReleaseRange()
	assert.Nil(t, w.LockRangeTimeout(50*time.Millisecond, 10))
}

func TestIDBlocksUntilReleased(t *testing.T) {
	w := New()
	w.LockID(7)

	acquired := make(chan struct{})
	go func() {
		w.LockID(7)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second id lock should have blocked")
	case <-time.After(100 * time.Millisecond):
	}

	w.ReleaseID(7)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("id lock did not wake after release")
	}
}

func TestReset(t *testing.T) {
	w := New()
	w.LockID(1)
	w.LockZ(2)
	w.LockRange(3)

	w.Reset()

	w.LockID(1)
	w.LockZ(2)
	w.LockRange(3)
}
