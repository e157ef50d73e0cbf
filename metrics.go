package quiver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the client's Prometheus instruments. A nil *metrics is
// valid and turns every record method into a no-op, so call sites never
// check whether metrics are enabled.
type metrics struct {
	dispatches  *prometheus.CounterVec
	dedupHits   *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	staleDrops  *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	entries     prometheus.Gauge
	subscribers prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiver_dispatches_total",
				Help: "Total base query dispatches started",
			},
			[]string{"endpoint", "kind"},
		),
		dedupHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiver_dedup_hits_total",
				Help: "Initiations absorbed by an in-flight dispatch for the same key",
			},
			[]string{"endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiver_cache_hits_total",
				Help: "Initiations served from a fresh fulfilled entry",
			},
			[]string{"endpoint"},
		),
		staleDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiver_stale_responses_dropped_total",
				Help: "Base query results discarded because a newer dispatch superseded them",
			},
			[]string{"endpoint"},
		),
		evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiver_entries_evicted_total",
				Help: "Cache entries removed after their unused grace period elapsed",
			},
			[]string{"endpoint"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiver_dispatch_duration_seconds",
				Help:    "Dispatch duration from start to settlement",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		entries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quiver_cache_entries",
				Help: "Live cache entries",
			},
		),
		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quiver_subscriptions",
				Help: "Active subscriptions across all entries",
			},
		),
	}
}

func (m *metrics) recordDispatch(endpoint string, kind Kind) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(endpoint, string(kind)).Inc()
}

func (m *metrics) recordDedupHit(endpoint string) {
	if m == nil {
		return
	}
	m.dedupHits.WithLabelValues(endpoint).Inc()
}

func (m *metrics) recordCacheHit(endpoint string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(endpoint).Inc()
}

func (m *metrics) recordStaleDrop(endpoint string) {
	if m == nil {
		return
	}
	m.staleDrops.WithLabelValues(endpoint).Inc()
}

func (m *metrics) recordEviction(endpoint string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(endpoint).Inc()
}

func (m *metrics) recordSettlement(endpoint string, status Status, took time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(endpoint, string(status)).Observe(took.Seconds())
}

func (m *metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}

func (m *metrics) addSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
