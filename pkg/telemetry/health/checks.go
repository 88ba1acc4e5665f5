package health

import (
	"context"
	"fmt"

	"mercator-hq/tutor/pkg/resilience"
)

// Pinger is implemented by stores and caches that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a check that pings p.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// BreakerCheck returns a check that fails while cb is open. A half-open
// breaker is probing and reported healthy.
func BreakerCheck(cb *resilience.CircuitBreaker) CheckFunc {
	return func(ctx context.Context) error {
		if state := cb.State(); state == resilience.StateOpen {
			return fmt.Errorf("circuit %s is %s after %d failures", cb.Name(), state, cb.Failures())
		}
		return nil
	}
}
