package track

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncx_mutations_total",
		Help: "Total intercepted mutations by operation",
	}, []string{"operation"})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncx_transactions_total",
		Help: "Total closed transaction frames by result",
	}, []string{"result"})

	historyStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncx_history_steps_total",
		Help: "Total undo and redo steps",
	}, []string{"direction"})

	lockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncx_lock_timeouts_total",
		Help: "Total lock acquisitions that timed out",
	})

	persistErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncx_persist_errors_total",
		Help: "Total failed hand-offs to the syncer",
	})

	diffDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncx_diff_duration_seconds",
		Help:    "Time spent computing mutation deltas",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
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

func recordMutation(op string) {
	if metricsEnabled.Load() {
		mutationsTotal.WithLabelValues(op).Inc()
	}
}

func recordTransaction(result string) {
	if metricsEnabled.Load() {
		transactionsTotal.WithLabelValues(result).Inc()
	}
}

func recordHistoryStep(direction string) {
	if metricsEnabled.Load() {
		historyStepsTotal.WithLabelValues(direction).Inc()
	}
}

func recordLockTimeout() {
	if metricsEnabled.Load() {
		lockTimeoutsTotal.Inc()
	}
}

func recordPersistError() {
	if metricsEnabled.Load() {
		persistErrorsTotal.Inc()
	}
}

func recordDiff(d time.Duration) {
	if metricsEnabled.Load() {
		diffDuration.Observe(d.Seconds())
	}
}
