package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds the store's Prometheus instruments. Registration
// goes through the given registerer so tests can use isolated registries.
type StoreMetrics struct {
	CommitsTotal           prometheus.Counter
	LockTimeoutsTotal      prometheus.Counter
	VacuumRunsTotal        prometheus.Counter
	ReclaimedVersionsTotal prometheus.Counter
	LiveSnapshots          prometheus.Gauge
}

func New(reg prometheus.Registerer) *StoreMetrics {
	factory := promauto.With(reg)
	return &StoreMetrics{
		CommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "widgetstore_commits_total",
			Help: "Total number of committed write transactions",
		}),
		LockTimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "widgetstore_lock_timeouts_total",
			Help: "Total number of write operations that gave up on lock acquisition",
		}),
		VacuumRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "widgetstore_vacuum_runs_total",
			Help: "Total number of vacuum passes",
		}),
		ReclaimedVersionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "widgetstore_reclaimed_versions_total",
			Help: "Total number of widget versions reclaimed by vacuum",
		}),
		LiveSnapshots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "widgetstore_live_snapshots",
			Help: "Number of snapshot serials currently held by readers",
		}),
	}
}
