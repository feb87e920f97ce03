package store

import (
	"sync"

	"github.com/google/btree"
)

type snapEntry struct {
	serial int64
	count  int
}

func (e *snapEntry) Less(than btree.Item) bool {
	return e.serial < than.(*snapEntry).serial
}

// snapshotSet is the ordered multiset of snapshot serials held by live
// readers. Its minimum is the vacuum barrier: versions that expired at or
// below it are invisible to every reader.
type snapshotSet struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func newSnapshotSet() *snapshotSet {
	return &snapshotSet{tree: btree.New(8)}
}

func (s *snapshotSet) add(serial int64) {
	s.mu.Lock()
	if item := s.tree.Get(&snapEntry{serial: serial}); item != nil {
		item.(*snapEntry).count++
	} else {
		s.tree.ReplaceOrInsert(&snapEntry{serial: serial, count: 1})
	}
	s.mu.Unlock()
}

func (s *snapshotSet) remove(serial int64) {
	s.mu.Lock()
	if item := s.tree.Get(&snapEntry{serial: serial}); item != nil {
		entry := item.(*snapEntry)
		entry.count--
		if entry.count <= 0 {
			s.tree.Delete(entry)
		}
	}
	s.mu.Unlock()
}

func (s *snapshotSet) min() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree.Len() == 0 {
		return 0, false
	}
	return s.tree.Min().(*snapEntry).serial, true
}

func (s *snapshotSet) reset() {
	s.mu.Lock()
	s.tree = btree.New(8)
	s.mu.Unlock()
}
