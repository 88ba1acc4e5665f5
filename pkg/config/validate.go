package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateBreaker(&cfg.Breaker)...)
	errs = append(errs, validateContent(&cfg.Content)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateCompletion(&cfg.Completion)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(s.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("must be host:port, got %q", s.ListenAddress),
		})
	}
	errs = append(errs, positiveDuration("server.read_timeout", s.ReadTimeout)...)
	errs = append(errs, positiveDuration("server.write_timeout", s.WriteTimeout)...)
	errs = append(errs, positiveDuration("server.shutdown_timeout", s.ShutdownTimeout)...)
	if s.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be positive"})
	}

	return errs
}

func validateSession(s *SessionConfig) []FieldError {
	var errs []FieldError

	if s.MaxMessages < 1 {
		errs = append(errs, FieldError{Field: "session.max_messages", Message: "must be at least 1"})
	}
	errs = append(errs, positiveDuration("session.timeout", s.Timeout)...)
	errs = append(errs, positiveDuration("session.sweep_interval", s.SweepInterval)...)

	return errs
}

func validateRateLimit(rl *RateLimitConfig) []FieldError {
	var errs []FieldError

	if rl.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "rate_limit.default_limit", Message: "must be at least 1"})
	}
	errs = append(errs, positiveDuration("rate_limit.default_window", rl.DefaultWindow)...)
	if rl.LocalMaxEntries < 1 {
		errs = append(errs, FieldError{Field: "rate_limit.local_max_entries", Message: "must be at least 1"})
	}
	if rl.MaxInFlight < 0 {
		errs = append(errs, FieldError{Field: "rate_limit.max_in_flight", Message: "must not be negative"})
	}

	for name, tier := range rl.Tiers {
		field := fmt.Sprintf("rate_limit.tiers.%s", name)
		if tier.Limit < 1 {
			errs = append(errs, FieldError{Field: field + ".limit", Message: "must be at least 1"})
		}
		errs = append(errs, positiveDuration(field+".window", tier.Window)...)
	}

	if rl.DefaultTier != "" {
		if _, ok := rl.Tiers[rl.DefaultTier]; !ok {
			errs = append(errs, FieldError{
				Field:   "rate_limit.default_tier",
				Message: fmt.Sprintf("unknown tier %q", rl.DefaultTier),
			})
		}
	}
	for owner, tier := range rl.Owners {
		if _, ok := rl.Tiers[tier]; !ok {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rate_limit.owners.%s", owner),
				Message: fmt.Sprintf("unknown tier %q", tier),
			})
		}
	}

	return errs
}

func validateRetry(r *RetryConfig) []FieldError {
	var errs []FieldError

	if r.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "retry.max_attempts", Message: "must be at least 1"})
	}
	if r.InitialDelay < 0 {
		errs = append(errs, FieldError{Field: "retry.initial_delay", Message: "must not be negative"})
	}
	if r.MaxDelay < r.InitialDelay {
		errs = append(errs, FieldError{Field: "retry.max_delay", Message: "must not be less than initial_delay"})
	}
	if r.BackoffMultiplier < 1 {
		errs = append(errs, FieldError{Field: "retry.backoff_multiplier", Message: "must be at least 1"})
	}
	if r.AttemptTimeout < 0 {
		errs = append(errs, FieldError{Field: "retry.attempt_timeout", Message: "must not be negative"})
	}

	return errs
}

func validateBreaker(b *BreakerConfig) []FieldError {
	var errs []FieldError

	if b.FailureThreshold < 1 {
		errs = append(errs, FieldError{Field: "breaker.failure_threshold", Message: "must be at least 1"})
	}
	errs = append(errs, positiveDuration("breaker.reset_timeout", b.ResetTimeout)...)

	return errs
}

func validateContent(c *ContentConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, oneOf("content.backend", c.Backend, "sqlite", "memory")...)
	errs = append(errs, positiveDuration("content.max_age", c.MaxAge)...)
	errs = append(errs, positiveDuration("content.retention", c.Retention)...)
	if c.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "content.max_entries", Message: "must not be negative"})
	}
	if _, err := cron.ParseStandard(c.PurgeSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "content.purge_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, oneOf("storage.backend", s.Backend, "sqlite", "memory")...)
	errs = append(errs, oneOf("storage.driver", s.Driver, "sqlite", "sqlite3")...)
	if s.Path == "" {
		errs = append(errs, FieldError{Field: "storage.path", Message: "is required"})
	}
	if s.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.busy_timeout", Message: "must not be negative"})
	}

	return errs
}

func validateCompletion(c *CompletionConfig) []FieldError {
	var errs []FieldError

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "completion.base_url",
			Message: fmt.Sprintf("must be an absolute URL, got %q", c.BaseURL),
		})
	}
	if c.Model == "" {
		errs = append(errs, FieldError{Field: "completion.model", Message: "is required"})
	}
	errs = append(errs, positiveDuration("completion.timeout", c.Timeout)...)
	if c.HistoryLimit < 1 {
		errs = append(errs, FieldError{Field: "completion.history_limit", Message: "must be at least 1"})
	}

	return errs
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, oneOf("telemetry.logging.level", strings.ToLower(t.Logging.Level), "debug", "info", "warn", "error")...)
	errs = append(errs, oneOf("telemetry.logging.format", strings.ToLower(t.Logging.Format), "json", "text")...)
	if !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	errs = append(errs, oneOf("telemetry.tracing.sampler", t.Tracing.Sampler, "always", "never", "ratio")...)
	if t.Tracing.SampleRatio < 0 || t.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}
	if t.Tracing.Enabled {
		if _, _, err := net.SplitHostPort(t.Tracing.Endpoint); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: fmt.Sprintf("must be host:port, got %q", t.Tracing.Endpoint),
			})
		}
	}

	return errs
}

func positiveDuration(field string, d time.Duration) []FieldError {
	if d <= 0 {
		return []FieldError{{Field: field, Message: "must be positive"}}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) []FieldError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return []FieldError{{
		Field:   field,
		Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value),
	}}
}
