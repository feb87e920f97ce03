package store

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"widgetstore/pkg/model"
	"widgetstore/pkg/zindex"
)

// noneID is never allocated as a widget id; shiftUp skips nothing when
// given it.
const noneID = int32(0)

// shiftPair links a superseded version to its successor one z higher.
type shiftPair struct {
	prev *Version
	next *Version
}

// shiftUp moves every visible version with z >= fromZ up by one on behalf
// of transaction tid. Caller holds the range lock at fromZ, so the set of
// affected widgets is frozen; their id locks are taken here, ascending by
// z, and stay held until the caller releases them after commit. skipID
// excludes the widget the calling operation already holds.
func (s *Store) shiftUp(tid uint64, fromZ int32, skipID int32) []shiftPair {
	var pairs []shiftPair
	s.byZ.Ascend(zindex.MinKeyAt(fromZ), func(e *zindex.Entry) bool {
		old := e.Payload.(*Version)
		if old.ID == skipID || s.statusAt(old, maxSerial) != statusActive {
			return true
		}
		s.locks.LockID(old.ID)
		old.supersede(tid)
		next := newVersion(model.Widget{
			ID:     old.ID,
			X:      old.X,
			Y:      old.Y,
			Z:      old.Z + 1,
			Width:  old.Width,
			Height: old.Height,
		}, tid)
		s.chainOf(old.ID).append(next)
		pairs = append(pairs, shiftPair{prev: old, next: next})
		return true
	})

	entries := make([]*zindex.Entry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, &zindex.Entry{Key: s.keys.Make(p.next.Z), Payload: p.next})
	}
	s.byZ.SetBatch(entries)
	return pairs
}

// cacheShiftSerials publishes the commit serial on every version touched
// by a shift, sparing later readers the log lookup.
func cacheShiftSerials(pairs []shiftPair, serial int64) {
	for _, p := range pairs {
		p.prev.tillSerial.Store(serial)
		p.next.fromSerial.Store(serial)
	}
}

func (s *Store) commit(tid uint64) (int64, error) {
	serial, err := s.log.Commit(tid)
	if err != nil {
		// a tid committing twice means the write path itself is broken
		return noneSerial, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if s.m != nil {
		s.m.CommitsTotal.Inc()
	}
	return serial, nil
}

func (s *Store) onLockTimeout(op string, err error) error {
	if s.m != nil {
		s.m.LockTimeoutsTotal.Inc()
	}
	logrus.Debugf("%s backed off: %v", op, err)
	return fmt.Errorf("%s: %w", op, ErrTimeout)
}

// Create inserts a widget at the requested z. When z is already occupied,
// the occupant and everything above it move up by one inside the same
// transaction.
func (s *Store) Create(x, y, z, width, height int32) (model.Widget, error) {
	s.latch.rlock()
	defer s.latch.runlock()

	tid := s.tids.Alloc()
	id := int32(s.ids.Alloc())

	s.locks.LockID(id)
	s.locks.LockZ(z)

	w := model.Widget{ID: id, X: x, Y: y, Z: z, Width: width, Height: height}
	newVer := newVersion(w, tid)
	s.byID.Store(id, newChainWith(newVer))
	s.byZ.Set(s.keys.Make(z), newVer)

	// the fresh version is not yet committed, so the probe sees only
	// someone else occupying z
	occupant, err := s.activeAt(z, maxSerial)
	if err != nil {
		s.locks.ReleaseZ(z)
		s.locks.ReleaseID(id)
		return model.Widget{}, err
	}
	var shifted []shiftPair
	if occupant != nil {
		s.locks.LockRange(z)
		shifted = s.shiftUp(tid, z, noneID)
	}

	serial, err := s.commit(tid)
	if err != nil {
		s.locks.ReleaseZ(z)
		s.locks.ReleaseID(id)
		if occupant != nil {
			s.locks.ReleaseRange()
		}
		for _, p := range shifted {
			s.locks.ReleaseID(p.next.ID)
		}
		return model.Widget{}, err
	}

	s.locks.ReleaseZ(z)
	s.locks.ReleaseID(id)
	if occupant != nil {
		s.locks.ReleaseRange()
	}
	for _, p := range shifted {
		s.locks.ReleaseID(p.next.ID)
	}

	newVer.fromSerial.Store(serial)
	cacheShiftSerials(shifted, serial)
	logrus.Debugf("created %s at serial %d, shifted %d", w, serial, len(shifted))
	return w, nil
}

// CreateAtTop inserts a widget one above the highest visible z, or at 0
// on an empty store. Holding z=MinInt32 plus the range above it blocks
// every other writer while the top is computed.
func (s *Store) CreateAtTop(x, y, width, height int32) (model.Widget, error) {
	s.latch.rlock()
	defer s.latch.runlock()

	tid := s.tids.Alloc()
	id := int32(s.ids.Alloc())

	s.locks.LockID(id)
	s.locks.LockZ(math.MinInt32)
	s.locks.LockRange(math.MinInt32)

	z := int32(0)
	if top, ok := s.maxActiveZ(); ok {
		z = top + 1
	}

	w := model.Widget{ID: id, X: x, Y: y, Z: z, Width: width, Height: height}
	newVer := newVersion(w, tid)
	s.byID.Store(id, newChainWith(newVer))
	s.byZ.Set(s.keys.Make(z), newVer)

	serial, err := s.commit(tid)
	if err != nil {
		s.locks.ReleaseRange()
		s.locks.ReleaseZ(math.MinInt32)
		s.locks.ReleaseID(id)
		return model.Widget{}, err
	}

	s.locks.ReleaseRange()
	s.locks.ReleaseZ(math.MinInt32)
	s.locks.ReleaseID(id)

	newVer.fromSerial.Store(serial)
	logrus.Debugf("created %s at top, serial %d", w, serial)
	return w, nil
}

// Update replaces the widget's fields. Moving onto an occupied z shifts
// the occupant and everything above it, exactly like Create. A
// field-for-field no-op touches nothing and returns the current record.
func (s *Store) Update(id, x, y, z, width, height int32) (model.Widget, error) {
	s.latch.rlock()
	defer s.latch.runlock()

	tid := s.tids.Alloc()

	s.locks.LockID(id)
	old := s.newestActive(id)
	if old == nil {
		s.locks.ReleaseID(id)
		return model.Widget{}, fmt.Errorf("widget id=%d: %w", id, ErrNotFound)
	}

	cand := model.Widget{ID: id, X: x, Y: y, Z: z, Width: width, Height: height}
	if cand == old.Widget {
		s.locks.ReleaseID(id)
		return old.Widget, nil
	}

	if err := s.locks.LockZTimeout(s.timeout, z, old.Z); err != nil {
		s.locks.ReleaseID(id)
		return model.Widget{}, s.onLockTimeout("update", err)
	}

	var shifted []shiftPair
	rangeHeld := false
	if z != old.Z {
		occupant, err := s.activeAt(z, maxSerial)
		if err != nil {
			s.locks.ReleaseZ(z, old.Z)
			s.locks.ReleaseID(id)
			return model.Widget{}, err
		}
		if occupant != nil {
			if err := s.locks.LockRangeTimeout(s.timeout, z); err != nil {
				s.locks.ReleaseID(id)
				s.locks.ReleaseZ(z, old.Z)
				return model.Widget{}, s.onLockTimeout("update", err)
			}
			rangeHeld = true
			// the updated widget itself is superseded below, not shifted
			shifted = s.shiftUp(tid, z, id)
		}
	}

	newVer := newVersion(cand, tid)
	old.supersede(tid)
	s.chainOf(id).append(newVer)
	s.byZ.Set(s.keys.Make(z), newVer)

	serial, err := s.commit(tid)
	if err != nil {
		s.locks.ReleaseZ(z, old.Z)
		if rangeHeld {
			s.locks.ReleaseRange()
		}
		for _, p := range shifted {
			s.locks.ReleaseID(p.next.ID)
		}
		s.locks.ReleaseID(id)
		return model.Widget{}, err
	}

	s.locks.ReleaseZ(z, old.Z)
	if rangeHeld {
		s.locks.ReleaseRange()
	}
	for _, p := range shifted {
		s.locks.ReleaseID(p.next.ID)
	}

	newVer.fromSerial.Store(serial)
	old.tillSerial.Store(serial)
	cacheShiftSerials(shifted, serial)
	s.locks.ReleaseID(id)
	logrus.Debugf("updated %s at serial %d, shifted %d", cand, serial, len(shifted))
	return cand, nil
}

// UpdateToTop moves the widget one above the highest visible z, keeping
// its current z when it is already on top.
func (s *Store) UpdateToTop(id, x, y, width, height int32) (model.Widget, error) {
	s.latch.rlock()
	defer s.latch.runlock()

	tid := s.tids.Alloc()

	s.locks.LockID(id)
	old := s.newestActive(id)
	if old == nil {
		s.locks.ReleaseID(id)
		return model.Widget{}, fmt.Errorf("widget id=%d: %w", id, ErrNotFound)
	}

	// freeze all writers while the top is computed
	if err := s.locks.LockZTimeout(s.timeout, math.MinInt32); err != nil {
		s.locks.ReleaseID(id)
		return model.Widget{}, s.onLockTimeout("updateToTop", err)
	}
	if err := s.locks.LockRangeTimeout(s.timeout, math.MinInt32); err != nil {
		s.locks.ReleaseID(id)
		s.locks.ReleaseZ(math.MinInt32)
		return model.Widget{}, s.onLockTimeout("updateToTop", err)
	}

	// the store cannot be empty here, old is visible
	target := int32(0)
	if top, ok := s.maxActiveZ(); ok {
		target = top + 1
	}
	z := target
	if old.Z+1 == target {
		// already in the foreground
		z = old.Z
	}

	cand := model.Widget{ID: id, X: x, Y: y, Z: z, Width: width, Height: height}
	if cand != old.Widget {
		newVer := newVersion(cand, tid)
		old.supersede(tid)
		s.chainOf(id).append(newVer)
		s.byZ.Set(s.keys.Make(cand.Z), newVer)

		serial, err := s.commit(tid)
		if err != nil {
			s.locks.ReleaseRange()
			s.locks.ReleaseZ(math.MinInt32)
			s.locks.ReleaseID(id)
			return model.Widget{}, err
		}
		newVer.fromSerial.Store(serial)
		old.tillSerial.Store(serial)
		logrus.Debugf("raised %s to top at serial %d", cand, serial)
	}

	s.locks.ReleaseRange()
	s.locks.ReleaseZ(math.MinInt32)
	s.locks.ReleaseID(id)
	return cand, nil
}

// Delete retires the widget's current version.
func (s *Store) Delete(id int32) error {
	s.latch.rlock()
	defer s.latch.runlock()

	tid := s.tids.Alloc()

	s.locks.LockID(id)
	old := s.newestActive(id)
	if old == nil {
		s.locks.ReleaseID(id)
		return fmt.Errorf("widget id=%d: %w", id, ErrNotFound)
	}

	if err := s.locks.LockZTimeout(s.timeout, old.Z); err != nil {
		s.locks.ReleaseID(id)
		return s.onLockTimeout("delete", err)
	}

	old.supersede(tid)
	serial, err := s.commit(tid)
	if err != nil {
		s.locks.ReleaseZ(old.Z)
		s.locks.ReleaseID(id)
		return err
	}
	s.locks.ReleaseZ(old.Z)
	old.tillSerial.Store(serial)
	s.locks.ReleaseID(id)
	logrus.Debugf("deleted widget %d at serial %d", id, serial)
	return nil
}
