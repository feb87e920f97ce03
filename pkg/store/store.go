package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matrixorigin/matrixone/pkg/vm/engine/aoe/storage/common"
	"github.com/sirupsen/logrus"

	"widgetstore/pkg/config"
	"widgetstore/pkg/locks"
	"widgetstore/pkg/metrics"
	"widgetstore/pkg/txnlog"
	"widgetstore/pkg/zindex"
)

// Store is an in-memory MVCC widget store. Reads run against immutable
// snapshots and never wait on writers; writers serialize through logical
// id/z/range locks and the transaction log. Every widget is a chain of
// versions; a version is visible to a reader whose snapshot serial falls
// inside the version's [from, till) commit window.
type Store struct {
	latch *globalLatch

	// byID maps widget id -> *versionChain
	byID sync.Map
	byZ  *zindex.Index
	keys *zindex.KeyFactory

	log   *txnlog.Log
	locks *locks.WriteLocks

	tids *common.IdAlloctor
	ids  *common.IdAlloctor

	snaps *snapshotSet

	timeout time.Duration
	m       *metrics.StoreMetrics
}

type Option func(*storeOptions)

type storeOptions struct {
	initialCapacity int
	timeout         time.Duration
	metrics         *metrics.StoreMetrics
}

// WithInitialCapacity pre-sizes the transaction log. Sizing only.
func WithInitialCapacity(capacity int) Option {
	return func(o *storeOptions) { o.initialCapacity = capacity }
}

// WithTimeout bounds lock acquisition in the operations that back off on
// conflict (update, updateToTop, delete).
func WithTimeout(timeout time.Duration) Option {
	return func(o *storeOptions) { o.timeout = timeout }
}

func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(o *storeOptions) { o.metrics = m }
}

func New(opts ...Option) (*Store, error) {
	defaults := config.Default()
	o := &storeOptions{
		initialCapacity: defaults.InitialCapacity,
		timeout:         defaults.Transaction.Timeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout <= 0 {
		return nil, fmt.Errorf("%w: non-positive timeout %v", ErrInvalidArg, o.timeout)
	}
	return &Store{
		latch:   newGlobalLatch(),
		byZ:     zindex.NewIndex(),
		keys:    zindex.NewKeyFactory(),
		log:     txnlog.New(o.initialCapacity),
		locks:   locks.New(),
		tids:    common.NewIdAlloctor(1),
		ids:     common.NewIdAlloctor(1),
		snaps:   newSnapshotSet(),
		timeout: o.timeout,
		m:       o.metrics,
	}, nil
}

func NewFromConfig(cfg *config.Config, opts ...Option) (*Store, error) {
	merged := append([]Option{
		WithInitialCapacity(cfg.InitialCapacity),
		WithTimeout(cfg.Transaction.Timeout),
	}, opts...)
	return New(merged...)
}

// LatestSerial exposes the newest commit serial, mostly for tests and
// introspection.
func (s *Store) LatestSerial() int64 {
	return s.log.LatestSerial()
}

func (s *Store) chainOf(id int32) *versionChain {
	if v, ok := s.byID.Load(id); ok {
		return v.(*versionChain)
	}
	return nil
}

// fromSerialOf resolves the commit serial that created v, caching on
// first resolution.
func (s *Store) fromSerialOf(v *Version) (int64, bool) {
	if cached := v.fromSerial.Load(); cached != noneSerial {
		return cached, true
	}
	serial, ok := s.log.SerialOf(v.fromTid)
	if !ok {
		return noneSerial, false
	}
	v.fromSerial.Store(serial)
	return serial, true
}

// tillSerialOf resolves the commit serial that retired v, if any.
func (s *Store) tillSerialOf(v *Version) (int64, bool) {
	if cached := v.tillSerial.Load(); cached != noneSerial {
		return cached, true
	}
	tid := v.tillTid.Load()
	if tid == noneTid {
		return noneSerial, false
	}
	serial, ok := s.log.SerialOf(tid)
	if !ok {
		return noneSerial, false
	}
	v.tillSerial.Store(serial)
	return serial, true
}

// statusAt classifies v as seen from the given snapshot serial.
func (s *Store) statusAt(v *Version, serial int64) status {
	if till, ok := s.tillSerialOf(v); ok && till <= serial {
		return statusExpired
	}
	if from, ok := s.fromSerialOf(v); !ok || from > serial {
		return statusNotYetCommitted
	}
	return statusActive
}

// newestActive returns the current version of id, or nil. Caller holds
// the id lock, so the newest chain element cannot move underneath.
func (s *Store) newestActive(id int32) *Version {
	chain := s.chainOf(id)
	if chain == nil {
		return nil
	}
	node := chain.newest()
	if node == nil {
		return nil
	}
	if s.statusAt(node.ver, maxSerial) != statusActive {
		return nil
	}
	return node.ver
}

// activeAt finds the visible version occupying z under the given serial.
// Two visible versions at one z mean a broken writer invariant; that is
// reported instead of guessed around.
func (s *Store) activeAt(z int32, serial int64) (*Version, error) {
	var found *Version
	var dup bool
	s.byZ.Ascend(zindex.MinKeyAt(z), func(e *zindex.Entry) bool {
		if e.Key.Z != z {
			return false
		}
		v := e.Payload.(*Version)
		if s.statusAt(v, serial) == statusActive {
			if found != nil {
				dup = true
				return false
			}
			found = v
		}
		return true
	})
	if dup {
		logrus.Errorf("two active versions share z=%d at serial=%d", z, serial)
		return nil, fmt.Errorf("%w: duplicate active z=%d", ErrInternal, z)
	}
	return found, nil
}

// maxActiveZ returns the highest z among currently visible versions.
func (s *Store) maxActiveZ() (int32, bool) {
	var top int32
	var found bool
	s.byZ.Descend(func(e *zindex.Entry) bool {
		v := e.Payload.(*Version)
		if s.statusAt(v, maxSerial) == statusActive {
			top = v.Z
			found = true
			return false
		}
		return true
	})
	return top, found
}

// Clear wipes the store back to its freshly constructed state. It takes
// the exclusive side of the global latch, waiting out every in-flight
// read and write; ctx cancels the wait, in which case nothing changed.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.latch.lock(ctx); err != nil {
		logrus.Infof("clear interrupted: %v", err)
		return err
	}
	defer s.latch.unlock()

	s.byID.Clear()
	s.byZ.Reset()
	s.tids = common.NewIdAlloctor(1)
	s.ids = common.NewIdAlloctor(1)
	s.log.Clear()
	s.locks.Reset()
	s.keys.Reset()
	s.snaps.reset()
	logrus.Infof("store cleared")
	return nil
}
