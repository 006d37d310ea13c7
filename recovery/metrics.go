package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for recovery metrics.
var Registry = prometheus.NewRegistry()

var (
	operationsRecovered = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "corvus",
		Subsystem: "recovery",
		Name:      "operations_recovered_total",
		Help:      "Translog operations successfully replayed during recovery.",
	})
	operationsSkipped = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "corvus",
		Subsystem: "recovery",
		Name:      "operations_skipped_total",
		Help:      "Corrupt translog operations skipped during recovery.",
	})
	recoveriesFailed = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "corvus",
		Subsystem: "recovery",
		Name:      "failed_total",
		Help:      "Recovery attempts that aborted shard startup.",
	})
	recoveryDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "corvus",
		Subsystem: "recovery",
		Name:      "duration_seconds",
		Help:      "Wall time of completed recovery attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)

// TranslogSyncFailures counts background translog sync failures on serving
// shards. Incremented by the shard sync scheduler.
var TranslogSyncFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
	Namespace: "corvus",
	Subsystem: "translog",
	Name:      "sync_failures_total",
	Help:      "Background translog sync attempts that failed.",
})
