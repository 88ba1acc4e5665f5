// Package telemetry groups the observability packages of the tutor service.
//
// # Components
//
//   - logging: slog construction with context fields and PII redaction
//   - metrics: Prometheus collector satisfying the per-component Metrics interfaces
//   - tracing: OpenTelemetry tracer provider and HTTP propagation
//   - health: liveness, readiness and version endpoints
//
// None of the core packages (session, ratelimit, content, resilience)
// import telemetry. They accept a *slog.Logger and a small Metrics
// interface, and cmd/tutor passes in the implementations from here.
package telemetry
