package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is matched by every CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// InfraError represents a transient infrastructure failure such as an
// unreachable shared store or a dropped upstream connection.
// Infrastructure errors are always retryable and drive fallback paths.
type InfraError struct {
	// Op names the operation that failed (e.g., "ratelimit.get", "cache.set")
	Op string

	// Err is the underlying error
	Err error
}

// NewInfraError wraps err as an infrastructure failure of op.
// It returns nil when err is nil so callers can wrap unconditionally.
func NewInfraError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: infrastructure unavailable: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *InfraError) Unwrap() error {
	return e.Err
}

// QuotaError represents a rate limit or policy denial.
// Quota errors are never retried automatically; callers surface them
// immediately together with the retry-after guidance.
type QuotaError struct {
	// Identifier is the rate-limited key (e.g., "chat:user-42")
	Identifier string

	// Limit is the configured request limit for the window
	Limit int

	// RetryAfter is how long the caller should wait before trying again
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q (limit %d, retry after %s)",
		e.Identifier, e.Limit, e.RetryAfter)
}

// TimeoutError is returned by WithTimeout when the wrapped operation does
// not finish before its deadline.
type TimeoutError struct {
	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Timeout)
}

// CircuitOpenError is returned when a circuit breaker rejects a call
// without invoking the protected operation.
type CircuitOpenError struct {
	// Name is the breaker name
	Name string

	// RetryAfter is the remaining cooldown before the breaker half-opens.
	// Zero means a trial call is already in flight.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit %q is open (retry after %s)", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit %q is open (trial in progress)", e.Name)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// StopReason records why the retry engine stopped retrying.
type StopReason string

const (
	// StopMaxAttempts means every allowed attempt failed.
	StopMaxAttempts StopReason = "max_attempts"

	// StopNonRetryable means the classifier rejected the failure.
	StopNonRetryable StopReason = "non_retryable"

	// StopVetoed means the caller's ShouldRetry predicate refused another try.
	StopVetoed StopReason = "vetoed"

	// StopCanceled means the caller's context ended between attempts.
	StopCanceled StopReason = "canceled"
)

// ExhaustedError wraps the last failure of a retried operation with the
// number of attempts made and the total elapsed time.
type ExhaustedError struct {
	// Attempts is how many times the operation was invoked
	Attempts int

	// Elapsed is the wall time spent across all attempts and delays
	Elapsed time.Duration

	// Reason explains why retrying stopped
	Reason StopReason

	// Err is the last error returned by the operation
	Err error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s) in %s (%s): %v",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.Reason, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error as non-retryable regardless of its type.
// Upstream adapters use it for request errors that can never succeed on
// retry (bad request, authentication failure).
type PermanentError struct {
	Err error
}

// Permanent wraps err so IsRetryable reports false for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsRetryable is the default failure classifier.
//
// Classification:
//   - infrastructure errors, timeouts and deadline expiry: retryable
//   - quota denials, open circuits, permanent errors, caller cancellation: not retryable
//   - errors exposing Temporary() bool: whatever they report
//   - anything else: retryable (unknown upstream failures are treated as transient)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var quota *QuotaError
	if errors.As(err, &quota) {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}

	var infra *InfraError
	if errors.As(err, &infra) {
		return true
	}

	var timeout *TimeoutError
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) {
		return temporary.Temporary()
	}

	return true
}

// IsInfraError reports whether err is (or wraps) an InfraError.
func IsInfraError(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}
