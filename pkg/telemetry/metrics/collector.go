package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/tutor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric in the tutor core. Components do
// not import this package; each declares a small Metrics interface that the
// Collector satisfies, and treats a nil value as "not recording".
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics    *RequestMetrics
	rateLimitMetrics  *RateLimitMetrics
	sessionMetrics    *SessionMetrics
	resilienceMetrics *ResilienceMetrics
	contentMetrics    *ContentMetrics

	// Route labels come from the router pattern, but unmatched requests
	// would otherwise label by raw path.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "tutor",
//		Subsystem: "core",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.rateLimitMetrics = NewRateLimitMetrics(cfg, registry)
	c.sessionMetrics = NewSessionMetrics(cfg, registry)
	c.resilienceMetrics = NewResilienceMetrics(cfg, registry)
	c.contentMetrics = NewContentMetrics(cfg, registry)

	return c
}

// RecordRequest records a completed HTTP request.
//
// Parameters:
//   - route: Router pattern (e.g., "/v1/chat/turns")
//   - method: HTTP method
//   - status: HTTP status code
//   - duration: Time spent serving the request
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s", route, method)
	if !c.cardinalityLimiter.Allow(labelSet) {
		route = "other"
	}

	c.requestMetrics.RecordRequest(route, method, status, duration)
}

// RecordTokens records token usage reported by the completion backend.
func (c *Collector) RecordTokens(promptTokens, completionTokens int) {
	if !c.config.Enabled {
		return
	}

	c.requestMetrics.RecordTokens(promptTokens, completionTokens)
}

// RecordRateLimitCheck counts one limiter decision.
//
// Parameters:
//   - path: "shared" when the shared store decided, "local" for the fallback
//   - result: "allowed" or "denied"
func (c *Collector) RecordRateLimitCheck(path, result string) {
	if !c.config.Enabled {
		return
	}

	c.rateLimitMetrics.RecordCheck(path, result)
}

// RecordRateLimitFallback counts one switch to the local fallback.
func (c *Collector) RecordRateLimitFallback() {
	if !c.config.Enabled {
		return
	}

	c.rateLimitMetrics.RecordFallback()
}

// SetActiveSessions sets the active sessions gauge.
func (c *Collector) SetActiveSessions(n int) {
	if !c.config.Enabled {
		return
	}

	c.sessionMetrics.SetActive(n)
}

// RecordSessionEvictions counts sessions removed for reason
// ("expired", "cleared", "owner_cleared").
func (c *Collector) RecordSessionEvictions(reason string, n int) {
	if !c.config.Enabled {
		return
	}

	c.sessionMetrics.RecordEvictions(reason, n)
}

// RecordRetry counts one scheduled retry of operation.
func (c *Collector) RecordRetry(operation string, delay time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.resilienceMetrics.RecordRetry(operation, delay)
}

// RecordBreakerTransition records a circuit breaker state change. from and
// to are state names ("closed", "open", "half-open").
func (c *Collector) RecordBreakerTransition(name, from, to string) {
	if !c.config.Enabled {
		return
	}

	c.resilienceMetrics.RecordTransition(name, from, to)
}

// RecordContentResult counts one fallback chain outcome by source.
func (c *Collector) RecordContentResult(source string) {
	if !c.config.Enabled {
		return
	}

	c.contentMetrics.RecordResult(source)
}

// RecordCacheLookup counts a content cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	if !c.config.Enabled {
		return
	}

	if hit {
		c.contentMetrics.RecordHit()
	} else {
		c.contentMetrics.RecordMiss()
	}
}

// RecordCacheEvictions counts purged content cache entries.
func (c *Collector) RecordCacheEvictions(n int) {
	if !c.config.Enabled {
		return
	}

	c.contentMetrics.RecordEvictions(n)
}

// RecordCacheWriteFailure counts a failed write-through.
func (c *Collector) RecordCacheWriteFailure() {
	if !c.config.Enabled {
		return
	}

	c.contentMetrics.RecordWriteFailure()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
