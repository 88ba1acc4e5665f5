// Package config provides configuration management for the tutor service.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// Load reads a .env file first (LoadDotEnv) without overriding variables
// already set in the process environment, then installs the result as the
// current configuration returned by GetConfig.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TUTOR_SECTION_FIELD:
//
//   - TUTOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TUTOR_COMPLETION_API_KEY overrides completion.api_key
//   - TUTOR_RATE_LIMIT_DEFAULT_LIMIT overrides rate_limit.default_limit
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Default values (NewDefault)
//  2. YAML file values
//  3. Environment variable overrides
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and reloads it
// after a debounce interval through Reload, which bumps Generation only
// when the new file validates. Callers decide which sections to apply live;
// the service applies rate limit tiers and the log level.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	rate_limit:
//	  default_limit: 20
//	  default_window: 1m
//	  default_tier: free
//	  tiers:
//	    free: {limit: 20, window: 1m}
//	    pro:  {limit: 120, window: 1m}
//	  owners:
//	    learner-42: pro
//	storage:
//	  driver: sqlite
//	  path: data/tutor.db
//	completion:
//	  model: gpt-4o-mini
package config
