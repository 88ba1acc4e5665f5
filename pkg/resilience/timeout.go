package resilience

import (
	"context"
	"time"
)

// WithTimeout wraps op so each invocation races against a timer of d.
//
// When the timer fires first the wrapped call returns a *TimeoutError, which
// the default classifier treats as retryable. Callers that do not want to
// retry timeouts supply their own Classifier. Cancellation of the caller's
// context is reported as the context error, not as a timeout.
//
// The operation keeps running in its goroutine after a timeout until it
// observes the canceled context; its late result is discarded.
func WithTimeout[T any](op Operation[T], d time.Duration) Operation[T] {
	if d <= 0 {
		return op
	}

	return func(parent context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()

		type outcome struct {
			value T
			err   error
		}

		done := make(chan outcome, 1)
		go func() {
			value, err := op(ctx)
			done <- outcome{value: value, err: err}
		}()

		select {
		case out := <-done:
			return out.value, out.err
		case <-ctx.Done():
			var zero T
			if err := parent.Err(); err != nil {
				return zero, err
			}
			return zero, &TimeoutError{Timeout: d}
		}
	}
}
