// Package resilience provides the retry engine and circuit breaker that wrap
// flaky upstream calls.
//
// # Retry
//
// Retry invokes an operation until it succeeds or retrying stops. Delays grow
// exponentially and are capped:
//
//	delay(k) = min(InitialDelay * BackoffMultiplier^(k-1), MaxDelay)
//
// With Jitter enabled a uniformly random amount in [0, 0.25*delay] is added.
//
//	res, err := resilience.Retry(ctx, fetch, resilience.Options{
//	    MaxAttempts:  3,
//	    InitialDelay: 250 * time.Millisecond,
//	    Jitter:       true,
//	})
//	if err != nil {
//	    var exhausted *resilience.ExhaustedError
//	    errors.As(err, &exhausted) // exhausted.Attempts, exhausted.Elapsed
//	}
//
// # Circuit Breaker
//
// A CircuitBreaker guards one logical operation across calls. After
// FailureThreshold consecutive failed executions it opens and rejects calls
// without invoking the operation until ResetTimeout has elapsed; the next call
// is a single trial that closes or reopens the circuit.
//
//	cb := resilience.NewCircuitBreaker("completion", resilience.BreakerConfig{
//	    FailureThreshold: 5,
//	    ResetTimeout:     time.Minute,
//	}, logger)
//	res, err := resilience.Execute(ctx, cb, complete)
//
// # Error Taxonomy
//
//   - InfraError: transient infrastructure failure, retryable, triggers fallbacks
//   - QuotaError: rate limit denial, never retried
//   - TimeoutError: per-attempt timeout from WithTimeout, retryable by default
//   - CircuitOpenError: rejected by an open breaker, not retryable
//   - ExhaustedError: the last failure annotated with attempts and elapsed time
package resilience
