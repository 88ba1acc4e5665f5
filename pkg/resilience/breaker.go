package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the state of a CircuitBreaker.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota

	// StateOpen rejects calls without invoking the operation.
	StateOpen

	// StateHalfOpen allows exactly one trial call.
	StateHalfOpen
)

// String returns the lowercase state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed executions that
	// opens the circuit.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a trial call.
	// Default: 60s
	ResetTimeout time.Duration

	// Retry configures the retry engine each execution goes through.
	Retry Options

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now returns the current time. Tests replace it to control cooldowns.
	Now func() time.Time
}

// CircuitBreaker guards one logical operation with fail-fast semantics.
//
// # State Machine
//
//	closed --(FailureThreshold consecutive failures)--> open
//	open --(ResetTimeout elapsed, next call)--> half-open
//	half-open --(trial succeeds)--> closed
//	half-open --(trial fails)--> open
//
// While open, Execute returns a *CircuitOpenError without invoking the
// operation. While half-open, only one trial is in flight; concurrent
// callers are rejected until it completes.
//
// # Thread Safety
//
// CircuitBreaker is safe for concurrent use. Do not share one breaker across
// unrelated operations: failures of one would trip protection for the other.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailureAt time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(name string, config BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger.With("component", "resilience.breaker", "breaker", name),
		state:  StateClosed,
	}
}

// Execute runs op through the breaker and the retry engine.
//
// A rejected call returns a *CircuitOpenError and a zero Result; the
// operation is not invoked. Otherwise the call goes through Retry with the
// breaker's retry options, and the outcome of the whole retried execution
// counts as one success or one failure.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, op Operation[T]) (Result[T], error) {
	trial, err := cb.allow()
	if err != nil {
		return Result[T]{}, err
	}

	res, err := Retry(ctx, op, cb.config.Retry)
	switch {
	case err == nil:
		cb.onSuccess(trial)
	case errors.Is(err, context.Canceled):
		// The caller went away; this says nothing about the upstream.
		cb.onAbort(trial)
	default:
		cb.onFailure(trial, err)
	}

	return res, err
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until the next call moves it to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the breaker back to closed with a zero failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.trialInFlight = false
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

// allow decides whether a call may proceed and whether it is the trial.
func (cb *CircuitBreaker) allow() (trial bool, err error) {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.config.Now().Sub(cb.lastFailureAt)
		if elapsed < cb.config.ResetTimeout {
			cb.mu.Unlock()
			return false, &CircuitOpenError{Name: cb.name, RetryAfter: cb.config.ResetTimeout - elapsed}
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		cb.mu.Unlock()

		cb.logger.Info("circuit half-open, allowing trial call")
		cb.notify(StateOpen, StateHalfOpen)
		return true, nil

	case StateHalfOpen:
		if cb.trialInFlight {
			cb.mu.Unlock()
			return false, &CircuitOpenError{Name: cb.name}
		}
		cb.trialInFlight = true
		cb.mu.Unlock()
		return true, nil

	default:
		cb.mu.Unlock()
		return false, nil
	}
}

func (cb *CircuitBreaker) onSuccess(trial bool) {
	cb.mu.Lock()
	from := cb.state
	cb.failureCount = 0
	if trial {
		cb.trialInFlight = false
		cb.state = StateClosed
	}
	cb.mu.Unlock()

	if trial && from != StateClosed {
		cb.logger.Info("circuit closed after successful trial")
		cb.notify(from, StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure(trial bool, err error) {
	cb.mu.Lock()
	from := cb.state
	now := cb.config.Now()

	if trial {
		cb.trialInFlight = false
		cb.state = StateOpen
		cb.lastFailureAt = now
		cb.failureCount++
		cb.mu.Unlock()

		cb.logger.Warn("circuit trial failed, reopening", "error", err)
		cb.notify(from, StateOpen)
		return
	}

	cb.failureCount++
	if cb.state == StateClosed && cb.failureCount >= cb.config.FailureThreshold {
		cb.state = StateOpen
		cb.lastFailureAt = now
		failures := cb.failureCount
		cb.mu.Unlock()

		cb.logger.Warn("circuit opened",
			"consecutive_failures", failures,
			"reset_timeout", cb.config.ResetTimeout,
			"error", err,
		)
		cb.notify(from, StateOpen)
		return
	}
	if cb.state == StateOpen {
		cb.lastFailureAt = now
	}
	cb.mu.Unlock()
}

// onAbort releases a trial slot without judging the upstream.
func (cb *CircuitBreaker) onAbort(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	cb.trialInFlight = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to || cb.config.OnStateChange == nil {
		return
	}
	cb.config.OnStateChange(cb.name, from, to)
}
