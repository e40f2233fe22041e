package incremental

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	putsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncx_incremental_puts_total",
		Help: "Total deltas offered to the shared store by outcome",
	}, []string{"outcome"})

	conflictPathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncx_incremental_conflict_paths_total",
		Help: "Total conflicting locations reported",
	})
)

// metricsEnabled controls whether metrics are recorded.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

func recordPut(outcome string, conflictPaths int) {
	if !metricsEnabled.Load() {
		return
	}
	putsTotal.WithLabelValues(outcome).Inc()
	if conflictPaths > 0 {
		conflictPathsTotal.Add(float64(conflictPaths))
	}
}
