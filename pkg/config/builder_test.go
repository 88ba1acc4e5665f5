package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg *Config
}

// NewTestConfig creates a builder holding a valid default configuration.
func NewTestConfig() *ConfigBuilder {
	cfg := NewDefault()
	cfg.Completion.APIKey = "test-key"
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithRateLimit sets the default quota.
func (b *ConfigBuilder) WithRateLimit(limit int, window time.Duration) *ConfigBuilder {
	b.cfg.RateLimit.DefaultLimit = limit
	b.cfg.RateLimit.DefaultWindow = window
	return b
}

// WithTier adds a named tier.
func (b *ConfigBuilder) WithTier(name string, limit int, window time.Duration) *ConfigBuilder {
	if b.cfg.RateLimit.Tiers == nil {
		b.cfg.RateLimit.Tiers = make(map[string]TierConfig)
	}
	b.cfg.RateLimit.Tiers[name] = TierConfig{Limit: limit, Window: window}
	return b
}

// WithOwnerTier assigns owner to tier.
func (b *ConfigBuilder) WithOwnerTier(owner, tier string) *ConfigBuilder {
	if b.cfg.RateLimit.Owners == nil {
		b.cfg.RateLimit.Owners = make(map[string]string)
	}
	b.cfg.RateLimit.Owners[owner] = tier
	return b
}

// WithStorage sets the storage driver and path.
func (b *ConfigBuilder) WithStorage(driver, path string) *ConfigBuilder {
	b.cfg.Storage.Driver = driver
	b.cfg.Storage.Path = path
	return b
}
