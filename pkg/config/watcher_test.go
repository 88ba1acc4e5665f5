package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	resetCurrent(t)

	path := writeConfig(t, "rate_limit:\n  default_limit: 5\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { changes <- c }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	defer w.Stop()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rate_limit:\n  default_limit: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.RateLimit.DefaultLimit != 9 {
			t.Errorf("default limit = %d, want 9", cfg.RateLimit.DefaultLimit)
		}
		if GetConfig() != cfg {
			t.Error("global config not replaced before callback")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresInvalidFile(t *testing.T) {
	resetCurrent(t)

	path := writeConfig(t, "rate_limit:\n  default_limit: 5\n")

	var calls atomic.Int32
	w, err := NewWatcher(path, 20*time.Millisecond, func(*Config) { calls.Add(1) }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rate_limit:\n  default_limit: -4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("onChange called %d times for invalid config", n)
	}
	if GetConfig() != nil {
		t.Error("invalid config replaced the global config")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", 0, nil, nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
}
