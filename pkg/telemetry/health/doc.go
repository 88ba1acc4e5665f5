// Package health provides liveness and readiness reporting.
//
// Checks are registered with a Severity. A failing Critical check makes
// /ready answer 503; a failing Degradable check is listed in the report's
// Degraded field and the status becomes "degraded" with a 200, since the
// local rate-limit fallback and the content fallback chain keep turns
// flowing. The tutor registers:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("ratelimit_store", health.Degradable, health.PingCheck(store))
//	checker.Register("content_cache", health.Degradable, health.PingCheck(cache))
//	checker.Register("completion_breaker", health.Degradable, health.BreakerCheck(breaker))
package health
