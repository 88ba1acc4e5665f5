package tracing

import (
	"strings"
	"testing"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantRoot string
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, "root:AlwaysOnSampler", false},
		{"never", SamplerNever, 0, "root:AlwaysOffSampler", false},
		{"ratio", SamplerRatio, 0.25, "root:TraceIDRatioBased{0.25}", false},
		{"ratio zero", SamplerRatio, 0, "root:AlwaysOffSampler", false},
		{"ratio one", SamplerRatio, 1, "root:AlwaysOnSampler", false},
		{"ratio too high", SamplerRatio, 1.5, "", true},
		{"ratio negative", SamplerRatio, -0.1, "", true},
		{"unknown", "sometimes", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			desc := s.Description()
			if !strings.HasPrefix(desc, "ParentBased{") || !strings.Contains(desc, tt.wantRoot) {
				t.Errorf("Description() = %q, want parent-based with %s", desc, tt.wantRoot)
			}
		})
	}
}
