// Package server exposes the tutor resilience core over HTTP.
//
// # Routes
//
//   - POST   /v1/chat/turns                    one learner turn
//   - GET    /v1/sessions/{id}/messages?n=     recent messages, 404 when absent
//   - DELETE /v1/sessions/{id}                 end one session
//   - DELETE /v1/owners/{owner}/sessions       end every session of an owner
//   - GET    /v1/ratelimit/{identifier}?limit= remaining quota, non-consuming
//   - DELETE /v1/ratelimit/{identifier}        administrative reset
//   - GET    /health, /ready, /version, /metrics
//
// A turn denied by the rate limiter answers 429 with Retry-After and the
// X-RateLimit-* headers. Upstream failures never surface as errors: the
// reply is served from the fallback chain and flagged with is_fallback and
// degraded in the body.
//
// # Middleware
//
// Requests pass through chi's RequestID and RealIP, then the logging
// context, the optional tracing span, the request logger and metrics
// recorder, and finally chi's Recoverer.
//
// # Graceful Shutdown
//
// Start blocks until its context is canceled, then stops accepting
// connections and waits up to ShutdownTimeout for in-flight turns.
package server
