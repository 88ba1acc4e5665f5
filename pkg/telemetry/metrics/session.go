package metrics

import (
	"mercator-hq/tutor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks conversation sessions.
//
// Metrics:
//   - tutor_core_sessions_active: Sessions currently held
//   - tutor_core_session_evictions_total: Removed sessions by reason
type SessionMetrics struct {
	active         prometheus.Gauge
	evictionsTotal *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SessionMetrics {
	sm := &SessionMetrics{
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_active",
				Help:      "Current number of conversation sessions",
			},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_evictions_total",
				Help:      "Total number of sessions removed",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(sm.active, sm.evictionsTotal)

	return sm
}

// SetActive sets the active sessions gauge.
func (sm *SessionMetrics) SetActive(n int) {
	sm.active.Set(float64(n))
}

// RecordEvictions adds n removed sessions for reason.
func (sm *SessionMetrics) RecordEvictions(reason string, n int) {
	if n > 0 {
		sm.evictionsTotal.WithLabelValues(reason).Add(float64(n))
	}
}
