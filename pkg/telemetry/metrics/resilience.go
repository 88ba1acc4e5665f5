package metrics

import (
	"time"

	"mercator-hq/tutor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker state gauge values.
const (
	breakerClosed   = 0
	breakerOpen     = 1
	breakerHalfOpen = 2
)

// ResilienceMetrics tracks retries and circuit breakers.
//
// Metrics:
//   - tutor_core_retry_attempts_total: Scheduled retries by operation
//   - tutor_core_retry_delay_seconds: Backoff delays by operation
//   - tutor_core_breaker_state: Current state (0=closed, 1=open, 2=half-open)
//   - tutor_core_breaker_transitions_total: State changes by breaker, from, to
type ResilienceMetrics struct {
	retriesTotal     *prometheus.CounterVec
	retryDelay       *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
	transitionsTotal *prometheus.CounterVec
}

// NewResilienceMetrics creates and registers resilience metrics.
func NewResilienceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ResilienceMetrics {
	rm := &ResilienceMetrics{
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of retries scheduled after a failed attempt",
			},
			[]string{"operation"},
		),

		retryDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retry_delay_seconds",
				Help:      "Backoff delay before a retry in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
			[]string{"operation"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),

		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"breaker", "from", "to"},
		),
	}

	registry.MustRegister(
		rm.retriesTotal,
		rm.retryDelay,
		rm.breakerState,
		rm.transitionsTotal,
	)

	return rm
}

// RecordRetry counts one retry and its delay.
func (rm *ResilienceMetrics) RecordRetry(operation string, delay time.Duration) {
	rm.retriesTotal.WithLabelValues(operation).Inc()
	rm.retryDelay.WithLabelValues(operation).Observe(delay.Seconds())
}

// RecordTransition counts a transition and updates the state gauge.
func (rm *ResilienceMetrics) RecordTransition(name, from, to string) {
	rm.transitionsTotal.WithLabelValues(name, from, to).Inc()
	rm.breakerState.WithLabelValues(name).Set(stateValue(to))
}

func stateValue(state string) float64 {
	switch state {
	case "open":
		return breakerOpen
	case "half-open":
		return breakerHalfOpen
	default:
		return breakerClosed
	}
}
