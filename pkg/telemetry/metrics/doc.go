// Package metrics provides Prometheus metrics collection for the tutor core.
//
// # Metrics Categories
//
//   - Request Metrics: HTTP request count and latency, completion tokens
//   - Rate Limit Metrics: Decisions by path and result, local fallbacks
//   - Session Metrics: Active sessions, evictions by reason
//   - Resilience Metrics: Retries, breaker state and transitions
//   - Content Metrics: Results by source, cache hits, misses, evictions
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	limiter := ratelimit.NewLimiter(store, rlCfg, logger, collector)
//	sessions := session.NewManager(sessCfg, nil, logger, collector, nil)
//	orch := content.NewOrchestrator(cache, defaults, contentCfg, nil, logger, collector)
//
//	breaker := resilience.NewCircuitBreaker("completion", resilience.BreakerConfig{
//		OnStateChange: func(name string, from, to resilience.State) {
//			collector.RecordBreakerTransition(name, from.String(), to.String())
//		},
//	}, logger)
//
//	http.Handle("/metrics", collector.Handler())
//
// Each component declares its own Metrics interface; Collector satisfies all
// of them. A disabled collector (Enabled=false) accepts every call and
// records nothing.
//
// # Registry
//
// Collectors register on a private prometheus.Registry rather than the
// global default, so tests can build as many collectors as they like.
package metrics
