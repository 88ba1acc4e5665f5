package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (TUTOR_SECTION_FIELD).
const EnvPrefix = "TUTOR_"

// LoadConfig loads configuration from a YAML file at path, applies
// defaults and validates it. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides, which always take precedence.
//
// The loading sequence is:
//  1. Start from the defaults
//  2. Decode YAML from the file (an empty path skips this step)
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := NewDefault()
	if path != "" {
		var err error
		if cfg, err = decodeFile(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides applies TUTOR_SECTION_FIELD environment variables.
// Malformed values are ignored and the file value kept.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Session overrides
	envInt("SESSION_MAX_MESSAGES", &cfg.Session.MaxMessages)
	envDuration("SESSION_TIMEOUT", &cfg.Session.Timeout)
	envDuration("SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval)

	// Rate limit overrides
	envInt("RATE_LIMIT_DEFAULT_LIMIT", &cfg.RateLimit.DefaultLimit)
	envDuration("RATE_LIMIT_DEFAULT_WINDOW", &cfg.RateLimit.DefaultWindow)
	envString("RATE_LIMIT_DEFAULT_TIER", &cfg.RateLimit.DefaultTier)
	envInt("RATE_LIMIT_MAX_IN_FLIGHT", &cfg.RateLimit.MaxInFlight)

	// Retry and breaker overrides
	envInt("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	envDuration("RETRY_INITIAL_DELAY", &cfg.Retry.InitialDelay)
	envDuration("RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	envBool("RETRY_JITTER", &cfg.Retry.Jitter)
	envDuration("RETRY_ATTEMPT_TIMEOUT", &cfg.Retry.AttemptTimeout)
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envDuration("BREAKER_RESET_TIMEOUT", &cfg.Breaker.ResetTimeout)

	// Content overrides
	envString("CONTENT_BACKEND", &cfg.Content.Backend)
	envDuration("CONTENT_MAX_AGE", &cfg.Content.MaxAge)
	envDuration("CONTENT_RETENTION", &cfg.Content.Retention)
	envString("CONTENT_PURGE_SCHEDULE", &cfg.Content.PurgeSchedule)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_DRIVER", &cfg.Storage.Driver)
	envString("STORAGE_PATH", &cfg.Storage.Path)
	envDuration("STORAGE_BUSY_TIMEOUT", &cfg.Storage.BusyTimeout)

	// Completion overrides
	envString("COMPLETION_BASE_URL", &cfg.Completion.BaseURL)
	envString("COMPLETION_API_KEY", &cfg.Completion.APIKey)
	envString("COMPLETION_MODEL", &cfg.Completion.Model)
	envDuration("COMPLETION_TIMEOUT", &cfg.Completion.Timeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
