// Package ratelimit provides the distributed fixed-window rate limiter.
//
// # Overview
//
// Limiter keeps one counter per identifier (typically "<scope>:<user-or-ip>")
// in a shared storage.Store so that every server process sees the same
// quota. When the shared store is unreachable the limiter keeps serving from
// a bounded process-local cache and flags the Decision as Degraded.
//
//	decision, err := limiter.Check(ctx, "chat:user-42", 20, time.Minute)
//	if err != nil {
//	    return err // invalid arguments only
//	}
//	for k, v := range decision.Headers() {
//	    w.Header()[k] = v
//	}
//	if !decision.Allowed {
//	    w.WriteHeader(http.StatusTooManyRequests)
//	}
//
// # Tiers
//
// TierResolver maps an owner to a limit and window. StaticTiers serves the
// configured table and can be swapped at runtime on configuration reload.
//
// # In-Flight Cap
//
// InFlightLimiter bounds concurrent upstream calls within one process.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package ratelimit
