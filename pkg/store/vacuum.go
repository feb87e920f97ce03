package store

import (
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/matrixorigin/matrixone/pkg/vm/engine/aoe/storage/logstore/sm"
	"github.com/sirupsen/logrus"

	"widgetstore/pkg/zindex"
)

// Vacuum drops every version no live reader can still observe. It runs
// under the shared latch, concurrently with reads and writes: the barrier
// is the lowest live snapshot serial, and anything that expired at or
// below it is invisible to all of them. Writers only append versions and
// retire versions whose serials resolve after this pass, so there is
// nothing to coordinate.
func (s *Store) Vacuum() {
	s.latch.rlock()
	defer s.latch.runlock()

	threshold, ok := s.snaps.min()
	if !ok {
		threshold = s.log.LatestSerial()
	}
	logrus.Infof("running vacuum, barrier serial %d", threshold)

	retiredChains := roaring.New()
	reclaimed := 0

	s.byID.Range(func(key, value interface{}) bool {
		chain := value.(*versionChain)
		head := chain.head.Load()

		// expired versions form the oldest suffix of a chain: find the
		// first reclaimable node and cut the link in front of it
		var keeper *chainNode
		var victim *chainNode
		for n := head; n != nil; n = n.older.Load() {
			if till, resolved := s.tillSerialOf(n.ver); resolved && till <= threshold {
				victim = n
				break
			}
			keeper = n
		}
		if victim == nil {
			return true
		}
		for n := victim; n != nil; n = n.older.Load() {
			reclaimed++
		}
		if keeper == nil {
			if chain.head.CompareAndSwap(head, nil) {
				id := key.(int32)
				s.byID.Delete(id)
				retiredChains.Add(uint32(id))
			}
		} else {
			keeper.older.Store(nil)
		}
		return true
	})

	var victims []zindex.UniqueKey
	s.byZ.Ascend(zindex.MinKeyAt(math.MinInt32), func(e *zindex.Entry) bool {
		v := e.Payload.(*Version)
		if till, resolved := s.tillSerialOf(v); resolved && till <= threshold {
			victims = append(victims, e.Key)
		}
		return true
	})
	s.byZ.DeleteBatch(victims)

	if s.m != nil {
		s.m.VacuumRunsTotal.Inc()
		s.m.ReclaimedVersionsTotal.Add(float64(reclaimed))
	}
	logrus.Infof("vacuum reclaimed %d versions, retired %d widget chains",
		reclaimed, retiredChains.GetCardinality())
}

type vacuumTrigger struct {
	cause string
}

// Daemon drives periodic vacuum passes. The store itself owns no
// scheduler; this is the surrounding system's. Triggers flow through a
// pending queue whose handler runs one pass per batch, so a burst of
// on-demand triggers collapses into a single vacuum.
type Daemon struct {
	sm.ClosedState
	sm.StateMachine

	store  *Store
	rate   time.Duration
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDaemon(s *Store, rate time.Duration) *Daemon {
	d := &Daemon{
		store:  s,
		rate:   rate,
		stopCh: make(chan struct{}),
	}
	pqueue := sm.NewSafeQueue(1000, 100, d.onTriggers)
	cqueue := sm.NewSafeQueue(1000, 100, d.onPassDone)
	d.StateMachine = sm.NewStateMachine(new(sync.WaitGroup), d, pqueue, cqueue)
	return d
}

func (d *Daemon) Start() {
	d.StateMachine.Start()
	d.wg.Add(1)
	go d.tickLoop()
}

func (d *Daemon) tickLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.rate)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Trigger("interval")
		}
	}
}

// Trigger enqueues an on-demand vacuum pass.
func (d *Daemon) Trigger(cause string) {
	d.EnqueueRecevied(&vacuumTrigger{cause: cause})
}

func (d *Daemon) onTriggers(items ...interface{}) {
	d.store.Vacuum()
	for _, item := range items {
		d.EnqueueCheckpoint(item)
	}
}

func (d *Daemon) onPassDone(items ...interface{}) {
	for _, item := range items {
		trigger := item.(*vacuumTrigger)
		logrus.Debugf("vacuum trigger %q served", trigger.cause)
	}
}

func (d *Daemon) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.StateMachine.Stop()
}
