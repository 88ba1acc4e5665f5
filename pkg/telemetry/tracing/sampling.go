package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampler strategies accepted in telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// newSampler builds the root sampler for strategy. Incoming requests that
// already carry a sampling decision keep it. A ratio at either bound
// collapses to the always or never sampler.
func newSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch strategy {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio:
		switch {
		case ratio < 0 || ratio > 1:
			return nil, fmt.Errorf("sample ratio must be within [0, 1], got %g", ratio)
		case ratio == 0:
			root = sdktrace.NeverSample()
		case ratio == 1:
			root = sdktrace.AlwaysSample()
		default:
			root = sdktrace.TraceIDRatioBased(ratio)
		}
	default:
		return nil, fmt.Errorf("unknown sampler %q (want %s, %s or %s)", strategy, SamplerAlways, SamplerNever, SamplerRatio)
	}
	return sdktrace.ParentBased(root), nil
}
