package conversation

import (
	"errors"
	"fmt"

	"mercator-hq/tutor/pkg/limits/ratelimit"
	"mercator-hq/tutor/pkg/resilience"
)

// ErrOverloaded is the primary failure recorded when too many completions
// are already in flight. The turn is served from fallback content.
var ErrOverloaded = errors.New("completion capacity exhausted")

// ValidationError represents an invalid turn request.
type ValidationError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid turn request: %s: %s", e.Field, e.Message)
}

// RateLimitedError is returned when the caller's quota is used up.
// It unwraps to *resilience.QuotaError and carries the full Decision so
// transports can emit rate-limit headers.
type RateLimitedError struct {
	Decision *ratelimit.Decision
	Quota    *resilience.QuotaError
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return e.Quota.Error()
}

// Unwrap returns the quota error.
func (e *RateLimitedError) Unwrap() error {
	return e.Quota
}
