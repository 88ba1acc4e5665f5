package config

import (
	"fmt"
	"sync/atomic"
)

var (
	current    atomic.Pointer[Config]
	generation atomic.Uint64
)

// Load reads envFile (a missing file is ignored), then the configuration
// at path with TUTOR_* overrides, and installs the result as the current
// configuration. An empty path yields defaults plus environment overrides.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, err
	}
	SetConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current configuration, or nil before Load or
// SetConfig. Components should receive their section explicitly; this is
// for the CLI and the reload path.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig installs cfg and returns its generation.
func SetConfig(cfg *Config) uint64 {
	current.Store(cfg)
	return generation.Add(1)
}

// Generation counts installed configurations. It changes on every
// successful SetConfig, Load or Reload.
func Generation() uint64 {
	return generation.Load()
}

// Reload re-reads path. The current configuration is replaced only when
// the new one loads and validates.
func Reload(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return cfg, nil
}
