package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Operation is a fallible call wrapped by the retry engine.
// It receives the caller's context and must honor its cancellation.
type Operation[T any] func(ctx context.Context) (T, error)

// Options configures Retry.
type Options struct {
	// MaxAttempts is the total number of invocations, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 1s
	InitialDelay time.Duration

	// MaxDelay caps the exponential delay (before jitter).
	// Default: 30s
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay between consecutive attempts.
	// Default: 2
	BackoffMultiplier float64

	// Jitter adds a uniformly random extra delay in [0, 0.25*delay].
	Jitter bool

	// Timeout bounds each individual attempt. Zero disables it.
	Timeout time.Duration

	// Classifier decides whether a failure may be retried.
	// Default: IsRetryable
	Classifier func(err error) bool

	// ShouldRetry lets the caller veto a retry the classifier allowed.
	// attempt is the 1-indexed attempt that just failed.
	ShouldRetry func(err error, attempt int) bool

	// OnRetry is invoked before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for d or until ctx ends. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand returns a float in [0, 1) used for jitter.
	Rand func() float64
}

// DefaultOptions returns the default retry options with jitter enabled.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// Result carries the outcome of a successful (or attempted) retry.
type Result[T any] struct {
	// Value is the operation's return value on success
	Value T

	// Attempts is how many times the operation was invoked
	Attempts int

	// Elapsed is the total time spent, including backoff delays
	Elapsed time.Duration
}

// Validate reports configuration mistakes. These are programmer errors
// and are the only errors Retry returns without invoking the operation.
func (o Options) Validate() error {
	if o.MaxAttempts < 0 {
		return fmt.Errorf("retry: max attempts must be >= 0, got %d", o.MaxAttempts)
	}
	if o.InitialDelay < 0 || o.MaxDelay < 0 || o.Timeout < 0 {
		return fmt.Errorf("retry: delays and timeout must not be negative")
	}
	if o.BackoffMultiplier != 0 && o.BackoffMultiplier < 1 {
		return fmt.Errorf("retry: backoff multiplier must be >= 1, got %g", o.BackoffMultiplier)
	}
	if o.MaxDelay > 0 && o.InitialDelay > o.MaxDelay {
		return fmt.Errorf("retry: initial delay %s exceeds max delay %s", o.InitialDelay, o.MaxDelay)
	}
	return nil
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffMultiplier == 0 {
		o.BackoffMultiplier = 2
	}
	if o.Classifier == nil {
		o.Classifier = IsRetryable
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

// BaseDelay returns the backoff delay after the given 1-indexed failed
// attempt, without jitter: min(InitialDelay * Multiplier^(attempt-1), MaxDelay).
func (o Options) BaseDelay(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(o.InitialDelay) * math.Pow(o.BackoffMultiplier, float64(attempt-1))
	if delay > float64(o.MaxDelay) || math.IsInf(delay, 0) {
		return o.MaxDelay
	}
	return time.Duration(delay)
}

// delay applies jitter on top of BaseDelay.
func (o Options) delay(attempt int) time.Duration {
	d := o.BaseDelay(attempt)
	if o.Jitter && d > 0 {
		d += time.Duration(o.Rand() * 0.25 * float64(d))
	}
	return d
}

// Retry invokes op until it succeeds or retrying stops.
//
// Retrying stops when MaxAttempts is reached, when the classifier marks the
// failure non-retryable, when ShouldRetry vetoes, or when ctx ends. In all of
// those cases the returned error is an *ExhaustedError wrapping the last
// failure, and the Result still reports Attempts and Elapsed.
//
// Retry has no knowledge of what op does.
//
// Example:
//
//	res, err := resilience.Retry(ctx, func(ctx context.Context) (string, error) {
//	    return client.Fetch(ctx)
//	}, resilience.Options{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond})
func Retry[T any](ctx context.Context, op Operation[T], opts Options) (Result[T], error) {
	if err := opts.Validate(); err != nil {
		return Result[T]{}, err
	}
	opts = opts.withDefaults()

	if opts.Timeout > 0 {
		op = WithTimeout(op, opts.Timeout)
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Attempts: attempt - 1, Elapsed: time.Since(start)},
				exhausted(attempt-1, start, StopCanceled, canceledCause(err, lastErr))
		}

		value, err := op(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}
		lastErr = err

		res := Result[T]{Attempts: attempt, Elapsed: time.Since(start)}

		if attempt >= opts.MaxAttempts {
			return res, exhausted(attempt, start, StopMaxAttempts, err)
		}
		if !opts.Classifier(err) {
			return res, exhausted(attempt, start, StopNonRetryable, err)
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err, attempt) {
			return res, exhausted(attempt, start, StopVetoed, err)
		}

		delay := opts.delay(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, delay)
		}

		if err := opts.Sleep(ctx, delay); err != nil {
			res.Elapsed = time.Since(start)
			return res, exhausted(attempt, start, StopCanceled, canceledCause(err, lastErr))
		}
	}
}

func exhausted(attempts int, start time.Time, reason StopReason, err error) *ExhaustedError {
	return &ExhaustedError{
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Reason:   reason,
		Err:      err,
	}
}

// canceledCause keeps the context error matchable with errors.Is while
// preserving the last operation failure in the message.
func canceledCause(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
