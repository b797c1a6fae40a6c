// Package metrics exposes Prometheus counters for the equipment program.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "barcode"

var (
	once sync.Once

	queueOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_operations_total",
			Help:      "Queue operations by operation and result code.",
		},
		[]string{"op", "result"},
	)

	sideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Failed fire-and-forget notifications by kind.",
		},
		[]string{"kind"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	directoryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_cache_total",
			Help:      "User directory cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry. Safe to
// call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(queueOps, sideEffectFailures, jobRuns, jobDuration, directoryCache)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncQueueOp(op, result string) {
	queueOps.WithLabelValues(op, result).Inc()
}

func IncSideEffectFailure(kind string) {
	sideEffectFailures.WithLabelValues(kind).Inc()
}

// ObserveJob records one run of a background job.
func ObserveJob(job, outcome string, d time.Duration) {
	jobRuns.WithLabelValues(job, outcome).Inc()
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func IncCacheHit() {
	directoryCache.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	directoryCache.WithLabelValues("miss").Inc()
}
