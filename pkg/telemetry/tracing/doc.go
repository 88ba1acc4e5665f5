// Package tracing provides OpenTelemetry distributed tracing.
//
// # Spans
//
// A chat turn produces this hierarchy:
//
//	HTTP POST /v1/chat/turns          (server middleware)
//	└── conversation.turn             (rate limit, session, fallback chain)
//	    └── completion.generate       (one per attempt)
//
// The completion adapter injects traceparent into upstream requests, so a
// trace continues into any backend that honors W3C Trace Context.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// Packages that emit spans use the global provider:
//
//	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "conversation.turn")
//	defer span.End()
//
// # Sampling Strategies
//
//   - always: Sample all traces (development/debugging)
//   - never: Sample no traces
//   - ratio: Sample a percentage of traces by trace ID (production)
package tracing
