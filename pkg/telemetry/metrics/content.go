package metrics

import (
	"mercator-hq/tutor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ContentMetrics tracks the content fallback chain and its cache.
//
// Metrics:
//   - tutor_core_content_results_total: Results by source (primary, cache, static)
//   - tutor_core_cache_hits_total: Usable cache entries found on fallback
//   - tutor_core_cache_misses_total: Fallback lookups with no usable entry
//   - tutor_core_cache_evictions_total: Entries purged past retention
//   - tutor_core_cache_write_failures_total: Failed write-throughs
//
// The fallback ratio is best watched with PromQL:
//
//	sum(rate(tutor_core_content_results_total{source!="primary"}[5m])) /
//	sum(rate(tutor_core_content_results_total[5m]))
type ContentMetrics struct {
	resultsTotal       *prometheus.CounterVec
	hitsTotal          prometheus.Counter
	missesTotal        prometheus.Counter
	evictionsTotal     prometheus.Counter
	writeFailuresTotal prometheus.Counter
}

// NewContentMetrics creates and registers content metrics.
func NewContentMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ContentMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	cm := &ContentMetrics{
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "content_results_total",
				Help:      "Total number of content results by source",
			},
			[]string{"source"},
		),
		hitsTotal:          counter("cache_hits_total", "Total number of content cache hits"),
		missesTotal:        counter("cache_misses_total", "Total number of content cache misses"),
		evictionsTotal:     counter("cache_evictions_total", "Total number of content cache entries purged"),
		writeFailuresTotal: counter("cache_write_failures_total", "Total number of failed content cache writes"),
	}

	registry.MustRegister(
		cm.resultsTotal,
		cm.hitsTotal,
		cm.missesTotal,
		cm.evictionsTotal,
		cm.writeFailuresTotal,
	)

	return cm
}

// RecordResult counts one result by source.
func (cm *ContentMetrics) RecordResult(source string) {
	cm.resultsTotal.WithLabelValues(source).Inc()
}

// RecordHit counts a cache hit.
func (cm *ContentMetrics) RecordHit() {
	cm.hitsTotal.Inc()
}

// RecordMiss counts a cache miss.
func (cm *ContentMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// RecordEvictions counts n purged entries.
func (cm *ContentMetrics) RecordEvictions(n int) {
	if n > 0 {
		cm.evictionsTotal.Add(float64(n))
	}
}

// RecordWriteFailure counts a failed write-through.
func (cm *ContentMetrics) RecordWriteFailure() {
	cm.writeFailuresTotal.Inc()
}
