package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStaticTiers_LimitFor(t *testing.T) {
	tiers, err := NewStaticTiers("free", map[string]Tier{
		"free": {Limit: 10, Window: time.Minute},
		"pro":  {Limit: 100, Window: time.Minute},
	}, map[string]string{"user-pro": "pro"})
	if err != nil {
		t.Fatalf("NewStaticTiers failed: %v", err)
	}

	tests := []struct {
		owner string
		limit int
	}{
		{"user-pro", 100},
		{"user-free", 10},
		{"", 10},
	}
	for _, tt := range tests {
		limit, window, err := tiers.LimitFor(context.Background(), tt.owner)
		if err != nil {
			t.Fatalf("LimitFor failed: %v", err)
		}
		if limit != tt.limit || window != time.Minute {
			t.Errorf("LimitFor(%q) = %d/%s, want %d/1m", tt.owner, limit, window, tt.limit)
		}
	}
}

func TestStaticTiers_Validation(t *testing.T) {
	tests := []struct {
		name        string
		defaultTier string
		tiers       map[string]Tier
		owners      map[string]string
	}{
		{"missing default", "free", map[string]Tier{"pro": {Limit: 1, Window: time.Second}}, nil},
		{"zero limit", "free", map[string]Tier{"free": {Limit: 0, Window: time.Second}}, nil},
		{"zero window", "free", map[string]Tier{"free": {Limit: 1}}, nil},
		{"undefined owner tier", "free", map[string]Tier{"free": {Limit: 1, Window: time.Second}}, map[string]string{"u": "gold"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticTiers(tt.defaultTier, tt.tiers, tt.owners); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStaticTiers_UpdateKeepsOldTableOnError(t *testing.T) {
	tiers, _ := NewStaticTiers("free", map[string]Tier{"free": {Limit: 5, Window: time.Second}}, nil)

	if err := tiers.Update("missing", map[string]Tier{}, nil); err == nil {
		t.Fatal("expected update error")
	}

	limit, _, _ := tiers.LimitFor(context.Background(), "anyone")
	if limit != 5 {
		t.Errorf("expected previous table kept, got limit %d", limit)
	}

	if err := tiers.Update("free", map[string]Tier{"free": {Limit: 7, Window: time.Second}}, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	limit, _, _ = tiers.LimitFor(context.Background(), "anyone")
	if limit != 7 {
		t.Errorf("expected updated limit 7, got %d", limit)
	}
}

func TestInFlightLimiter(t *testing.T) {
	l := NewInFlightLimiter(2)

	r1, ok1 := l.TryAcquire()
	r2, ok2 := l.TryAcquire()
	_, ok3 := l.TryAcquire()

	if !ok1 || !ok2 {
		t.Fatal("expected first two acquisitions to succeed")
	}
	if ok3 {
		t.Error("expected third acquisition to fail")
	}
	if l.InFlight() != 2 {
		t.Errorf("expected 2 in flight, got %d", l.InFlight())
	}

	r1()
	r1()
	if l.InFlight() != 1 {
		t.Errorf("expected double release to count once, got %d in flight", l.InFlight())
	}

	r2()
	if l.InFlight() != 0 {
		t.Errorf("expected 0 in flight, got %d", l.InFlight())
	}
}

func TestInFlightLimiter_Unlimited(t *testing.T) {
	l := NewInFlightLimiter(0)
	for i := 0; i < 100; i++ {
		if _, ok := l.TryAcquire(); !ok {
			t.Fatal("expected unlimited limiter to always admit")
		}
	}
}

func TestInFlightLimiter_Concurrent(t *testing.T) {
	l := NewInFlightLimiter(5)

	var mu sync.Mutex
	peak := int64(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := l.TryAcquire()
			if !ok {
				return
			}
			defer release()

			mu.Lock()
			if n := l.InFlight(); n > peak {
				peak = n
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if peak > 5 {
		t.Errorf("expected at most 5 in flight, peak %d", peak)
	}
	if l.InFlight() != 0 {
		t.Errorf("expected all slots released, got %d", l.InFlight())
	}
}
