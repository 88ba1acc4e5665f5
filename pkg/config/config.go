package config

import "time"

// Config is the root configuration structure for the tutor service.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Session contains conversation session bounds and expiry.
	Session SessionConfig `yaml:"session"`

	// RateLimit contains per-caller request quotas and tiers.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Retry configures the retry engine in front of the completion upstream.
	Retry RetryConfig `yaml:"retry"`

	// Breaker configures the circuit breaker guarding the completion upstream.
	Breaker BreakerConfig `yaml:"breaker"`

	// Content configures the reply cache and fallback chain.
	Content ContentConfig `yaml:"content"`

	// Storage configures the shared SQLite database.
	Storage StorageConfig `yaml:"storage"`

	// Completion configures the upstream chat model.
	Completion CompletionConfig `yaml:"completion"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover the slowest retried completion.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits request bodies.
	// Default: 65536 (64KB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// SessionConfig contains session manager configuration.
type SessionConfig struct {
	// MaxMessages bounds the messages kept per session; older ones are dropped.
	// Default: 50
	MaxMessages int `yaml:"max_messages"`

	// Timeout is the inactivity period after which a session expires.
	// Default: 30m
	Timeout time.Duration `yaml:"timeout"`

	// SweepInterval is how often expired sessions are removed.
	// Default: 5m
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig contains rate limiting configuration.
//
// Tiers, Owners, DefaultTier, DefaultLimit and DefaultWindow are reloadable.
type RateLimitConfig struct {
	// DefaultLimit is the request quota per window for callers without a tier.
	// Default: 20
	DefaultLimit int `yaml:"default_limit"`

	// DefaultWindow is the fixed window length.
	// Default: 1m
	DefaultWindow time.Duration `yaml:"default_window"`

	// DefaultTier names the tier applied to owners not listed in Owners.
	// Empty applies DefaultLimit and DefaultWindow.
	DefaultTier string `yaml:"default_tier"`

	// Tiers maps tier names to quotas.
	Tiers map[string]TierConfig `yaml:"tiers"`

	// Owners maps owner ids to tier names.
	Owners map[string]string `yaml:"owners"`

	// LocalMaxEntries caps the in-process fallback used when the shared
	// store is unreachable.
	// Default: 10000
	LocalMaxEntries int `yaml:"local_max_entries"`

	// LocalCleanupInterval is how often the fallback drops expired windows.
	// Default: 1m
	LocalCleanupInterval time.Duration `yaml:"local_cleanup_interval"`

	// MaxInFlight caps concurrent upstream completions per process.
	// Zero disables the cap.
	// Default: 0
	MaxInFlight int `yaml:"max_in_flight"`
}

// TierConfig is one named quota.
type TierConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RetryConfig configures retries of upstream completions.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the second attempt.
	// Default: 1s
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff delay.
	// Default: 30s
	MaxDelay time.Duration `yaml:"max_delay"`

	// BackoffMultiplier grows the delay between attempts.
	// Default: 2
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// Jitter adds up to 25% random extra delay.
	// Default: true
	Jitter bool `yaml:"jitter"`

	// AttemptTimeout bounds each attempt. Zero disables it.
	// Default: 30s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// BreakerConfig configures the completion circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed executions that
	// opens the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long the circuit stays open before a trial call.
	// Default: 60s
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ContentConfig configures the reply cache.
type ContentConfig struct {
	// Backend selects the cache: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// MaxAge is the oldest cached reply served as a fallback.
	// Default: 24h
	MaxAge time.Duration `yaml:"max_age"`

	// Retention is the age past which cached replies are purged.
	// Default: 168h (7 days)
	Retention time.Duration `yaml:"retention"`

	// MaxEntries caps the cache size. Zero means no cap for SQLite.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// PurgeSchedule is the cron expression for retention purges.
	// Default: "0 3 * * *"
	PurgeSchedule string `yaml:"purge_schedule"`
}

// StorageConfig configures the SQLite database shared by the rate limiter
// and the reply cache.
type StorageConfig struct {
	// Backend selects the rate limit store: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Driver selects the database/sql driver: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path.
	// Default: "data/tutor.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a write waits for a competing lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaintenanceInterval is how often expired rate limit rows are removed
	// and the WAL is checkpointed.
	// Default: 5m
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// CompletionConfig configures the upstream chat model.
type CompletionConfig struct {
	// BaseURL is the OpenAI-compatible API root.
	// Default: "https://api.openai.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates upstream calls. Prefer TUTOR_COMPLETION_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier.
	// Default: "gpt-4o-mini"
	Model string `yaml:"model"`

	// Timeout bounds one upstream HTTP request.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// SystemPrompt is sent before the conversation history.
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryLimit is how many recent messages are sent upstream.
	// Default: 10
	HistoryLimit int `yaml:"history_limit"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Reloadable.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII masks emails, phone numbers and API keys in log values.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tutor"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "core"
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service.name resource attribute.
	// Default: "tutor"
	ServiceName string `yaml:"service_name"`
}
