package zindex

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

const btreeDegree = 8

// Entry is a single z-index slot: a key and the version it points at.
type Entry struct {
	Key     UniqueKey
	Payload interface{}
}

func (e *Entry) Less(than btree.Item) bool {
	return e.Key.Less(than.(*Entry).Key)
}

// Index is an ordered map from UniqueKey to a version payload. Mutators
// serialize on a mutex and publish a copy-on-write clone of the tree, so
// scans run lock-free against an immutable snapshot.
type Index struct {
	mu   sync.Mutex
	tree atomic.Pointer[btree.BTree]
}

func NewIndex() *Index {
	idx := &Index{}
	idx.tree.Store(btree.New(btreeDegree))
	return idx
}

func (idx *Index) snapshot() *btree.BTree {
	return idx.tree.Load()
}

func (idx *Index) Set(key UniqueKey, payload interface{}) {
	idx.SetBatch([]*Entry{{Key: key, Payload: payload}})
}

// SetBatch installs all entries in one published clone, so a scan either
// sees the whole batch or none of it.
func (idx *Index) SetBatch(entries []*Entry) {
	if len(entries) == 0 {
		return
	}
	idx.mu.Lock()
	clone := idx.tree.Load().Clone()
	for _, e := range entries {
		clone.ReplaceOrInsert(e)
	}
	idx.tree.Store(clone)
	idx.mu.Unlock()
}

func (idx *Index) DeleteBatch(keys []UniqueKey) {
	if len(keys) == 0 {
		return
	}
	idx.mu.Lock()
	clone := idx.tree.Load().Clone()
	for _, k := range keys {
		clone.Delete(&Entry{Key: k})
	}
	idx.tree.Store(clone)
	idx.mu.Unlock()
}

// Ascend visits entries with key >= from in key order until fn returns
// false. The visit runs on the snapshot current at the call.
func (idx *Index) Ascend(from UniqueKey, fn func(*Entry) bool) {
	idx.snapshot().AscendGreaterOrEqual(&Entry{Key: from}, func(item btree.Item) bool {
		return fn(item.(*Entry))
	})
}

// Descend visits all entries in reverse key order until fn returns false.
func (idx *Index) Descend(fn func(*Entry) bool) {
	idx.snapshot().Descend(func(item btree.Item) bool {
		return fn(item.(*Entry))
	})
}

func (idx *Index) Len() int {
	return idx.snapshot().Len()
}

func (idx *Index) Reset() {
	idx.mu.Lock()
	idx.tree.Store(btree.New(btreeDegree))
	idx.mu.Unlock()
}
