package store

import (
	"math"

	"go.uber.org/atomic"

	"widgetstore/pkg/model"
)

const (
	// noneTid marks a version nothing has superseded; allocated tids
	// start at 1.
	noneTid = uint64(0)
	// noneSerial marks an unresolved serial cache; consult the log.
	noneSerial = int64(-1)
	// maxSerial makes status checks answer "as of right now".
	maxSerial = int64(math.MaxInt64)
)

type status int8

const (
	statusExpired status = iota
	statusActive
	statusNotYetCommitted
)

// Version is one immutable snapshot of a widget. The widget fields and
// fromTid are fixed at construction; tillTid is set exactly once when a
// later transaction supersedes or deletes the version, and the two serial
// fields only ever move from unresolved to their final value. All three
// are atomics so readers racing a writer observe them in an order
// consistent with the transaction log.
type Version struct {
	model.Widget

	fromTid    uint64
	tillTid    atomic.Uint64
	fromSerial atomic.Int64
	tillSerial atomic.Int64
}

func newVersion(w model.Widget, tid uint64) *Version {
	v := &Version{Widget: w, fromTid: tid}
	v.fromSerial.Store(noneSerial)
	v.tillSerial.Store(noneSerial)
	return v
}

// supersede marks v as replaced by transaction tid. Caller holds the id
// lock for v's widget.
func (v *Version) supersede(tid uint64) {
	v.tillTid.Store(tid)
}
