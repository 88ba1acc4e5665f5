// Tutor is the resilience core behind the language-tutor chat product.
//
// It serves chat turns over HTTP, keeping learners talking through rate
// limits, upstream outages and storage trouble:
//   - Bounded, expiring conversation sessions
//   - Retry with backoff behind a circuit breaker
//   - A shared rate limiter that falls back to local counters
//   - Cached and static replies when the model is unavailable
//
// Usage:
//
//	# Start the server with defaults and TUTOR_* environment overrides
//	tutor run
//
//	# Start with a configuration file (reloaded on change)
//	tutor run --config /etc/tutor/tutor.yaml
//
//	# Inspect or reset a caller's quota
//	tutor ratelimit show chat:alice
//	tutor ratelimit reset chat:alice
//
//	# Purge old cached replies
//	tutor cache purge --older-than 72h
//
//	# Check a configuration file
//	tutor validate --config tutor.yaml
package main

import (
	"fmt"
	"os"

	"mercator-hq/tutor/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
