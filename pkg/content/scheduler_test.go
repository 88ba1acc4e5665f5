package content

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingPurger struct {
	calls atomic.Int32
	n     int
	err   error
}

func (p *countingPurger) Purge(ctx context.Context) (int, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestRetentionScheduler_StartStop(t *testing.T) {
	s := NewRetentionScheduler(&countingPurger{}, "", nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v", err)
	}

	next, ok := s.NextRun()
	if !ok {
		t.Fatal("NextRun() reported no entry")
	}
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("NextRun() = %v, want 03:00", next)
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	s.Stop()
}

func TestRetentionScheduler_InvalidSchedule(t *testing.T) {
	s := NewRetentionScheduler(&countingPurger{}, "not a schedule", nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid schedule should fail")
	}
	if s.IsRunning() {
		t.Error("scheduler should not run after failed Start")
	}
}

func TestRetentionScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewRetentionScheduler(&countingPurger{}, "@every 1h", nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRetentionScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name   string
		purger *countingPurger
		want   int
	}{
		{"deleted", &countingPurger{n: 4}, 4},
		{"nothing", &countingPurger{}, 0},
		{"error", &countingPurger{n: 9, err: errors.New("disk gone")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRetentionScheduler(tt.purger, "", nil)
			if got := s.RunOnce(context.Background()); got != tt.want {
				t.Errorf("RunOnce() = %d, want %d", got, tt.want)
			}
			if tt.purger.calls.Load() != 1 {
				t.Errorf("purger called %d times, want 1", tt.purger.calls.Load())
			}
		})
	}
}
