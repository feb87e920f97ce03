package txnlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommitAndSerialOf(t *testing.T) {
	log := New(2)
	serial1, err := log.Commit(1)
	assert.Nil(t, err)
	serial2, err := log.Commit(2)
	assert.Nil(t, err)

	got, ok := log.SerialOf(1)
	assert.True(t, ok)
	assert.Equal(t, serial1, got)
	got, ok = log.SerialOf(2)
	assert.True(t, ok)
	assert.Equal(t, serial2, got)
	assert.Greater(t, serial2, serial1)
}

func TestUncommittedTidHasNoSerial(t *testing.T) {
	log := New(2)
	_, ok := log.SerialOf(1)
	assert.False(t, ok)
}

func TestLatestSerial(t *testing.T) {
	log := New(2)
	assert.Equal(t, NoneSerial, log.LatestSerial())
	serial, err := log.Commit(1)
	assert.Nil(t, err)
	assert.Equal(t, serial, log.LatestSerial())
}

func TestCommittingSameTidTwice(t *testing.T) {
	log := New(2)
	_, err := log.Commit(1)
	assert.Nil(t, err)
	_, err = log.Commit(1)
	assert.ErrorIs(t, err, ErrAlreadyCommitted)
}

func TestSerialsAreDense(t *testing.T) {
	log := New(16)
	for i := uint64(1); i <= 10; i++ {
		serial, err := log.Commit(i)
		assert.Nil(t, err)
		assert.Equal(t, int64(i-1), serial)
	}
}

func TestClear(t *testing.T) {
	log := New(2)
	_, err := log.Commit(1)
	assert.Nil(t, err)
	log.Clear()

	assert.Equal(t, NoneSerial, log.LatestSerial())
	_, ok := log.SerialOf(1)
	assert.False(t, ok)
	serial, err := log.Commit(1)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), serial)
}

func TestConcurrentCommitsAssignUniqueSerials(t *testing.T) {
	log := New(128)
	var wg sync.WaitGroup
	workers := 8
	perWorker := 100
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := log.Commit(base + uint64(i))
				assert.Nil(t, err)
			}
		}(uint64(w*perWorker + 1))
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for tid := uint64(1); tid <= uint64(workers*perWorker); tid++ {
		serial, ok := log.SerialOf(tid)
		assert.True(t, ok)
		assert.False(t, seen[serial])
		seen[serial] = true
	}
	assert.Equal(t, int64(workers*perWorker-1), log.LatestSerial())
}
