package config

import (
	"testing"
	"time"
)

func TestNewTestConfig(t *testing.T) {
	cfg := NewTestConfig().Build()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Storage.Driver != DefaultStorageDriver {
		t.Errorf("expected storage driver %q, got %q", DefaultStorageDriver, cfg.Storage.Driver)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("test config should be valid: %v", err)
	}
}

func TestConfigBuilder_ChainedCalls(t *testing.T) {
	cfg := NewTestConfig().
		WithListenAddress("0.0.0.0:9090").
		WithRateLimit(5, 10*time.Second).
		WithTier("pro", 100, time.Minute).
		WithOwnerTier("learner-1", "pro").
		WithStorage("sqlite3", "/tmp/tutor.db").
		Build()

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.RateLimit.DefaultLimit != 5 || cfg.RateLimit.DefaultWindow != 10*time.Second {
		t.Errorf("rate limit = %d/%s", cfg.RateLimit.DefaultLimit, cfg.RateLimit.DefaultWindow)
	}
	if cfg.RateLimit.Owners["learner-1"] != "pro" {
		t.Errorf("owners = %v", cfg.RateLimit.Owners)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("config should be valid: %v", err)
	}
}

func TestNewDefault_BooleansDefaultTrue(t *testing.T) {
	cfg := NewDefault()

	if !cfg.Retry.Jitter {
		t.Error("retry jitter should default to true")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
	if !cfg.Telemetry.Logging.RedactPII {
		t.Error("PII redaction should default to enabled")
	}
}
