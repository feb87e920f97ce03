package zindex

import (
	"fmt"

	"github.com/matrixorigin/matrixone/pkg/vm/engine/aoe/storage/common"

	wcommon "widgetstore/pkg/common"
)

// UniqueKey orders the z-index. Z alone is not unique while a shift is in
// flight (an outgoing version and its replacement share a z until vacuum),
// so a process-wide tiebreaker makes the full key totally ordered.
type UniqueKey struct {
	Z   int32
	Tie uint64
}

func (k UniqueKey) Compare(o UniqueKey) int {
	if r := wcommon.CompareInt32(k.Z, o.Z); r != 0 {
		return r
	}
	return wcommon.CompareUint64(k.Tie, o.Tie)
}

func (k UniqueKey) Less(o UniqueKey) bool {
	return k.Compare(o) < 0
}

func (k UniqueKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.Z, k.Tie)
}

// MinKeyAt is the lowest possible key for z: every allocated tiebreaker is
// greater than zero, so it sorts before any real entry at that z.
func MinKeyAt(z int32) UniqueKey {
	return UniqueKey{Z: z}
}

// KeyFactory mints keys with monotonically increasing tiebreakers.
type KeyFactory struct {
	seq *common.IdAlloctor
}

func NewKeyFactory() *KeyFactory {
	return &KeyFactory{seq: common.NewIdAlloctor(1)}
}

func (f *KeyFactory) Make(z int32) UniqueKey {
	return UniqueKey{Z: z, Tie: f.seq.Alloc()}
}

// Reset restarts the tiebreaker sequence. Only the store's clear path may
// call it, under the exclusive latch.
func (f *KeyFactory) Reset() {
	f.seq = common.NewIdAlloctor(1)
}
