// Package metrics holds the Prometheus collectors shared by every component.
// Collectors are usable before registration; call [Register] once to expose
// them on the default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rawrfeed"

var (
	registerOnce sync.Once

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache name and result (fresh, stale, miss)",
	}, []string{"cache", "result"})
	cacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Cache entries removed by cache name and reason",
	}, []string{"cache", "reason"})
	cacheRevalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "revalidations_total",
		Help:      "Background revalidations by cache name and outcome",
	}, []string{"cache", "outcome"})

	dedupeFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedupe",
		Name:      "fetches_total",
		Help:      "Dedupe calls by group and whether they started or joined a fetch",
	}, []string{"group", "mode"})

	retryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Retries scheduled by error kind",
	}, []string{"kind"})

	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "End-to-end resource fetch duration by resource and result",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"resource", "result"})

	queueActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "active",
		Help:      "Tasks currently admitted by queue",
	}, []string{"queue"})
	queuePending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "pending",
		Help:      "Tasks waiting for admission by queue",
	}, []string{"queue"})
	queueFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "task_failures_total",
		Help:      "Tasks that returned an error or panicked, by queue",
	}, []string{"queue"})

	storeFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "flushes_total",
		Help:      "Pending-write batches handed to the writer",
	})
	storeWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Durable writes by outcome (ok, retried, fallback, encode_error)",
	}, []string{"outcome"})
	storeQuotaEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "quota_evictions_total",
		Help:      "Keys deleted to recover from quota-exceeded failures",
	})
)

// Register registers every collector with the default Prometheus registry
// (idempotent).
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			cacheLookups, cacheEvictions, cacheRevalidations,
			dedupeFetches, retryAttempts, fetchDuration,
			queueActive, queuePending, queueFailures,
			storeFlushes, storeWrites, storeQuotaEvictions,
		)
	})
}

// Cache helpers
func IncCacheLookup(cache, result string) { cacheLookups.WithLabelValues(cache, result).Inc() }
func AddCacheEvictions(cache, reason string, n int) { cacheEvictions.WithLabelValues(cache, reason).Add(float64(n)) }
func IncCacheRevalidation(cache, outcome string) { cacheRevalidations.WithLabelValues(cache, outcome).Inc() }

// Dedupe helpers
func IncDedupeStarted(group string) { dedupeFetches.WithLabelValues(group, "started").Inc() }
func IncDedupeCollapsed(group string) { dedupeFetches.WithLabelValues(group, "collapsed").Inc() }

// IncRetryAttempt counts one scheduled retry for an error of the given kind.
func IncRetryAttempt(kind string) { retryAttempts.WithLabelValues(kind).Inc() }

// ObserveFetch records how long a resource fetch took.
func ObserveFetch(resource, result string, d time.Duration) {
	fetchDuration.WithLabelValues(resource, result).Observe(d.Seconds())
}

// Queue helpers
func SetQueueDepth(queue string, active, pending int) {
	queueActive.WithLabelValues(queue).Set(float64(active))
	queuePending.WithLabelValues(queue).Set(float64(pending))
}
func IncQueueFailure(queue string) { queueFailures.WithLabelValues(queue).Inc() }

// Store helpers
func IncStoreFlush() { storeFlushes.Inc() }
func IncStoreWrite(outcome string) { storeWrites.WithLabelValues(outcome).Inc() }
func AddStoreQuotaEvictions(n int) { storeQuotaEvictions.Add(float64(n)) }
