package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/tutor/pkg/resilience"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	if err := PingCheck(fakePinger{})(context.Background()); err != nil {
		t.Errorf("expected healthy ping, got %v", err)
	}

	down := errors.New("database is locked")
	if err := PingCheck(fakePinger{err: down})(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected ping error, got %v", err)
	}
}

func TestBreakerCheck(t *testing.T) {
	now := time.Now()
	cb := resilience.NewCircuitBreaker("completion", resilience.BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Retry:            resilience.Options{MaxAttempts: 1},
		Now:              func() time.Time { return now },
	}, nil)

	check := BreakerCheck(cb)
	if err := check(context.Background()); err != nil {
		t.Fatalf("closed breaker should be healthy, got %v", err)
	}

	_, _ = resilience.Execute(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "", errors.New("upstream 503")
	})

	err := check(context.Background())
	if err == nil {
		t.Fatal("open breaker should be unhealthy")
	}
	if !strings.Contains(err.Error(), "completion is open") {
		t.Errorf("unexpected message: %v", err)
	}

	checker := New(time.Second)
	checker.Register("completion_breaker", Degradable, check)
	if report := checker.Ready(context.Background()); report.Status != StatusDegraded {
		t.Errorf("open breaker should degrade readiness, got %q", report.Status)
	}
}
