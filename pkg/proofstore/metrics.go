package proofstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics is the set of Prometheus collectors a Store reports
// when cfg.EnableMetrics is set, covering the two request paths §4.2
// names (ingest via store_block, serve via build_proof) plus how often
// a GC sweep actually drops data. It stays nil, and every instrumented
// call site a no-op, when metrics are disabled — tests and throwaway
// stores never pay for a registry.
type storeMetrics struct {
	ingestDuration prometheus.Histogram
	buildDuration  prometheus.Histogram
	gcSweeps       prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	m := &storeMetrics{
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tonproof",
			Subsystem: "proofstore",
			Name:      "store_block_duration_seconds",
			Help:      "Latency of store_block calls on the ingest path.",
			Buckets:   prometheus.DefBuckets,
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tonproof",
			Subsystem: "proofstore",
			Name:      "build_proof_duration_seconds",
			Help:      "Latency of build_proof calls on the serve path.",
			Buckets:   prometheus.DefBuckets,
		}),
		gcSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tonproof",
			Subsystem: "proofstore",
			Name:      "gc_sweeps_total",
			Help:      "Count of store_block calls that queued a GC range-delete.",
		}),
	}
	reg.MustRegister(m.ingestDuration, m.buildDuration, m.gcSweeps)
	return m
}

func (m *storeMetrics) observeIngest(start time.Time) {
	if m == nil {
		return
	}
	m.ingestDuration.Observe(time.Since(start).Seconds())
}

func (m *storeMetrics) observeBuild(start time.Time) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(time.Since(start).Seconds())
}

func (m *storeMetrics) incGCSweep() {
	if m == nil {
		return
	}
	m.gcSweeps.Inc()
}
