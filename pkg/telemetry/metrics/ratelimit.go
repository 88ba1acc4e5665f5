package metrics

import (
	"mercator-hq/tutor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics tracks limiter decisions.
//
// Metrics:
//   - tutor_core_ratelimit_checks_total: Decisions by path (shared, local) and result
//   - tutor_core_ratelimit_fallbacks_total: Switches to the local fallback
type RateLimitMetrics struct {
	checksTotal    *prometheus.CounterVec
	fallbacksTotal prometheus.Counter
}

// NewRateLimitMetrics creates and registers rate limit metrics.
func NewRateLimitMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RateLimitMetrics {
	rm := &RateLimitMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_checks_total",
				Help:      "Total number of rate limit checks",
			},
			[]string{"path", "result"},
		),

		fallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_fallbacks_total",
				Help:      "Total number of checks served by the local fallback because the shared store failed",
			},
		),
	}

	registry.MustRegister(rm.checksTotal, rm.fallbacksTotal)

	return rm
}

// RecordCheck counts one decision.
func (rm *RateLimitMetrics) RecordCheck(path, result string) {
	rm.checksTotal.WithLabelValues(path, result).Inc()
}

// RecordFallback counts one local fallback activation.
func (rm *RateLimitMetrics) RecordFallback() {
	rm.fallbacksTotal.Inc()
}
