package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "tutor.*" namespace.
const (
	// Conversation attributes
	AttrOwner      = "tutor.owner"
	AttrSession    = "tutor.session"
	AttrScope      = "tutor.scope"
	AttrNewSession = "tutor.session.new"

	// Fallback chain attributes
	AttrSource     = "tutor.content.source"
	AttrIsFallback = "tutor.content.fallback"
	AttrDegraded   = "tutor.degraded"
	AttrAttempts   = "tutor.attempts"

	// Rate limit attributes
	AttrRateLimitAllowed   = "tutor.ratelimit.allowed"
	AttrRateLimitRemaining = "tutor.ratelimit.remaining"
	AttrRateLimitLocal     = "tutor.ratelimit.local"

	// Completion attributes
	AttrModel            = "tutor.model"
	AttrTokensPrompt     = "tutor.tokens.prompt"
	AttrTokensCompletion = "tutor.tokens.completion"
	AttrFinishReason     = "tutor.finish_reason"
)

// SetRateLimitAttributes records a limiter decision on span.
func SetRateLimitAttributes(span trace.Span, allowed bool, remaining int, local bool) {
	span.SetAttributes(
		attribute.Bool(AttrRateLimitAllowed, allowed),
		attribute.Int(AttrRateLimitRemaining, remaining),
		attribute.Bool(AttrRateLimitLocal, local),
	)
}

// SetContentAttributes records which link of the fallback chain answered.
func SetContentAttributes(span trace.Span, source string, isFallback bool, attempts int) {
	span.SetAttributes(
		attribute.String(AttrSource, source),
		attribute.Bool(AttrIsFallback, isFallback),
		attribute.Int(AttrAttempts, attempts),
	)
}

// SetTokenAttributes sets token count attributes on a span.
func SetTokenAttributes(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensCompletion, completionTokens),
	)
}
