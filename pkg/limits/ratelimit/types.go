package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Denial reasons reported in Decision.Reason.
const (
	// ReasonLimitExceeded means the window's quota is used up.
	ReasonLimitExceeded = "rate limit exceeded"

	// ReasonConcurrentUpdate means another process updated the counter
	// between our read and our conditional write.
	ReasonConcurrentUpdate = "concurrent update"
)

// Config configures a Limiter.
type Config struct {
	// DefaultLimit is used by CheckDefault.
	// Default: 20
	DefaultLimit int

	// DefaultWindow is used by CheckDefault.
	// Default: 1 minute
	DefaultWindow time.Duration

	// LocalMaxEntries caps the local fallback cache.
	// Default: 10,000
	LocalMaxEntries int

	// LocalCleanupInterval is how often the local fallback drops expired windows.
	// Default: 1 minute
	LocalCleanupInterval time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Decision is the result of a rate limit check.
// It maps directly onto the standard rate-limit response headers.
type Decision struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the configured request limit for the window.
	Limit int

	// Remaining is how many requests remain in the window.
	Remaining int

	// ResetAt is when the window resets.
	ResetAt time.Time

	// RetryAfter suggests how long to wait before retrying (denials only).
	RetryAfter time.Duration

	// Reason explains why the request was rejected (if Allowed=false).
	Reason string

	// Degraded is true when the local fallback served the decision because
	// the shared store was unreachable.
	Degraded bool
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (d *Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Headers returns the rate-limit response headers for the decision.
// Retry-After is only set on denials.
func (d *Decision) Headers() http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	}
	return h
}

// Metrics receives limiter observations. A nil Metrics disables recording.
type Metrics interface {
	// RecordRateLimitCheck counts one check. path is "shared" or "local";
	// result is "allowed" or "denied".
	RecordRateLimitCheck(path, result string)

	// RecordRateLimitFallback counts one switch to the local fallback.
	RecordRateLimitFallback()
}

type noopMetrics struct{}

func (noopMetrics) RecordRateLimitCheck(path, result string) {}
func (noopMetrics) RecordRateLimitFallback()                 {}
