package store

import (
	"iter"

	"widgetstore/pkg/model"
	"widgetstore/pkg/zindex"
)

// snapshotIn publishes the read snapshot for the duration of fn. The
// serial is registered in the live set so vacuum will not reclaim
// anything the snapshot can still see, and removed on every exit path.
func (s *Store) snapshotIn(fn func(serial int64)) {
	s.latch.rlock()
	defer s.latch.runlock()

	serial := s.log.LatestSerial()
	s.snaps.add(serial)
	if s.m != nil {
		s.m.LiveSnapshots.Inc()
	}
	defer func() {
		s.snaps.remove(serial)
		if s.m != nil {
			s.m.LiveSnapshots.Dec()
		}
	}()

	fn(serial)
}

// GetByID returns the widget visible at the snapshot taken on entry.
func (s *Store) GetByID(id int32) (model.Widget, error) {
	var result model.Widget
	found := false
	s.snapshotIn(func(serial int64) {
		chain := s.chainOf(id)
		if chain == nil {
			return
		}
		chain.walk(func(v *Version) bool {
			switch s.statusAt(v, serial) {
			case statusActive:
				result = v.Widget
				found = true
				return false
			case statusExpired:
				// once a chain walk hits an expiration boundary, no
				// older version can be visible
				return false
			}
			return true
		})
	})
	if !found {
		return model.Widget{}, ErrNotFound
	}
	return result, nil
}

// RangeByZ yields up to limit visible widgets with z >= fromZ, ascending.
// The snapshot and the shared latch are taken when iteration starts and
// released exactly once when the consumer finishes or breaks out; a
// sequence that is never ranged over holds nothing.
func (s *Store) RangeByZ(fromZ int32, limit int) iter.Seq[model.Widget] {
	return func(yield func(model.Widget) bool) {
		s.snapshotIn(func(serial int64) {
			yielded := 0
			s.byZ.Ascend(zindex.MinKeyAt(fromZ), func(e *zindex.Entry) bool {
				if yielded >= limit {
					return false
				}
				v := e.Payload.(*Version)
				if s.statusAt(v, serial) != statusActive {
					return true
				}
				yielded++
				return yield(v.Widget)
			})
		})
	}
}

// Size counts widgets visible at the snapshot taken on entry.
func (s *Store) Size() int {
	count := 0
	s.snapshotIn(func(serial int64) {
		s.byID.Range(func(_, value interface{}) bool {
			chain := value.(*versionChain)
			chain.walk(func(v *Version) bool {
				switch s.statusAt(v, serial) {
				case statusActive:
					count++
					return false
				case statusExpired:
					return false
				}
				return true
			})
			return true
		})
	})
	return count
}
