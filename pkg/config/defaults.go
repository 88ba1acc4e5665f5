package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(65536)

	// Session defaults
	DefaultSessionMaxMessages   = 50
	DefaultSessionTimeout       = 30 * time.Minute
	DefaultSessionSweepInterval = 5 * time.Minute

	// Rate limit defaults
	DefaultRateLimit                = 20
	DefaultRateLimitWindow          = time.Minute
	DefaultRateLimitLocalMaxEntries = 10000
	DefaultRateLimitLocalCleanup    = time.Minute

	// Retry defaults
	DefaultRetryMaxAttempts       = 3
	DefaultRetryInitialDelay      = time.Second
	DefaultRetryMaxDelay          = 30 * time.Second
	DefaultRetryBackoffMultiplier = 2.0
	DefaultRetryJitter            = true
	DefaultRetryAttemptTimeout    = 30 * time.Second

	// Breaker defaults
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerResetTimeout     = 60 * time.Second

	// Content defaults
	DefaultContentBackend       = "sqlite"
	DefaultContentMaxAge        = 24 * time.Hour
	DefaultContentRetention     = 7 * 24 * time.Hour
	DefaultContentMaxEntries    = 10000
	DefaultContentPurgeSchedule = "0 3 * * *"

	// Storage defaults
	DefaultStorageBackend             = "sqlite"
	DefaultStorageDriver              = "sqlite"
	DefaultStoragePath                = "data/tutor.db"
	DefaultStorageBusyTimeout         = 5 * time.Second
	DefaultStorageMaintenanceInterval = 5 * time.Minute

	// Completion defaults
	DefaultCompletionBaseURL      = "https://api.openai.com/v1"
	DefaultCompletionModel        = "gpt-4o-mini"
	DefaultCompletionTimeout      = 60 * time.Second
	DefaultCompletionHistoryLimit = 10

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultLogRedactPII     = true
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "tutor"
	DefaultMetricsSubsystem = "core"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingService   = "tutor"
)

// NewDefault returns a configuration with every default applied.
// LoadConfig decodes YAML on top of it, so booleans that default to true
// stay true unless the file sets them.
func NewDefault() *Config {
	cfg := &Config{
		Retry: RetryConfig{Jitter: DefaultRetryJitter},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: DefaultLogRedactPII},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Session defaults
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = DefaultSessionMaxMessages
	}
	if cfg.Session.Timeout == 0 {
		cfg.Session.Timeout = DefaultSessionTimeout
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = DefaultSessionSweepInterval
	}

	applyRateLimitDefaults(&cfg.RateLimit)

	// Retry defaults
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = DefaultRetryInitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = DefaultRetryBackoffMultiplier
	}
	if cfg.Retry.AttemptTimeout == 0 {
		cfg.Retry.AttemptTimeout = DefaultRetryAttemptTimeout
	}

	// Breaker defaults
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = DefaultBreakerResetTimeout
	}

	// Content defaults
	if cfg.Content.Backend == "" {
		cfg.Content.Backend = DefaultContentBackend
	}
	if cfg.Content.MaxAge == 0 {
		cfg.Content.MaxAge = DefaultContentMaxAge
	}
	if cfg.Content.Retention == 0 {
		cfg.Content.Retention = DefaultContentRetention
	}
	if cfg.Content.MaxEntries == 0 {
		cfg.Content.MaxEntries = DefaultContentMaxEntries
	}
	if cfg.Content.PurgeSchedule == "" {
		cfg.Content.PurgeSchedule = DefaultContentPurgeSchedule
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Storage.MaintenanceInterval == 0 {
		cfg.Storage.MaintenanceInterval = DefaultStorageMaintenanceInterval
	}

	// Completion defaults
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = DefaultCompletionBaseURL
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = DefaultCompletionModel
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = DefaultCompletionTimeout
	}
	if cfg.Completion.HistoryLimit == 0 {
		cfg.Completion.HistoryLimit = DefaultCompletionHistoryLimit
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 && cfg.Telemetry.Tracing.Sampler == DefaultTracingSampler {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
}

func applyRateLimitDefaults(rl *RateLimitConfig) {
	if rl.DefaultLimit == 0 {
		rl.DefaultLimit = DefaultRateLimit
	}
	if rl.DefaultWindow == 0 {
		rl.DefaultWindow = DefaultRateLimitWindow
	}
	if rl.LocalMaxEntries == 0 {
		rl.LocalMaxEntries = DefaultRateLimitLocalMaxEntries
	}
	if rl.LocalCleanupInterval == 0 {
		rl.LocalCleanupInterval = DefaultRateLimitLocalCleanup
	}
	for name, tier := range rl.Tiers {
		if tier.Window == 0 {
			tier.Window = rl.DefaultWindow
		}
		rl.Tiers[name] = tier
	}
}
