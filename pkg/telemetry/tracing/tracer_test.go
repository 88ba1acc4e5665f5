package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/tutor/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConfig() *config.TracingConfig {
	return &config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "tutor-test",
	}
}

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(testConfig(), "test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, exporter
}

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("expected disabled tracer")
	}

	_, span := tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a valid span context")
	}
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestShutdownRestoresGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	tracer, err := NewWithExporter(testConfig(), "test", tracetest.NewInMemoryExporter())
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	if otel.GetTracerProvider() == before {
		t.Fatal("provider was not installed globally")
	}

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("Shutdown did not restore the previous provider")
	}
}

func TestNewWithExporter_BadSampler(t *testing.T) {
	cfg := testConfig()
	cfg.Sampler = "sometimes"
	if _, err := NewWithExporter(cfg, "test", tracetest.NewInMemoryExporter()); err == nil {
		t.Error("expected error for unknown sampler")
	}
}

func TestTracer_RecordsSpans(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	ctx, parent := tracer.Start(context.Background(), "conversation.turn")
	SetContentAttributes(parent, "cache", true, 3)
	_, child := tracer.Start(ctx, "completion.generate")
	SetError(child, errors.New("upstream 503"))
	child.End()
	parent.End()

	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	gen := byName["completion.generate"]
	turn := byName["conversation.turn"]
	if gen.Parent.SpanID() != turn.SpanContext.SpanID() {
		t.Error("completion span is not a child of the turn span")
	}
	if gen.Status.Code != codes.Error {
		t.Errorf("child status = %v, want Error", gen.Status.Code)
	}

	want := attribute.String(AttrSource, "cache")
	found := false
	for _, kv := range turn.Attributes {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("turn span missing %v", want)
	}
}

func TestTraceID(t *testing.T) {
	tracer, _ := newTestTracer(t)

	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID(empty) = %q, want empty", id)
	}

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()
	if id := TraceID(ctx); len(id) != 32 {
		t.Errorf("TraceID() = %q, want 32 hex chars", id)
	}
}

func TestSetError_Nil(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	_, span := tracer.Start(context.Background(), "op")
	SetError(span, nil)
	span.End()
	_ = tracer.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("nil error marked the span as failed")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	upstream, upstreamSpan := tracer.Start(context.Background(), "client")
	headers := http.Header{}
	Inject(upstream, headers)
	upstreamSpan.End()

	handler := HTTPMiddleware(func(*http.Request) string { return "/v1/chat/turns" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if TraceID(r.Context()) == "" {
				t.Error("handler context carries no span")
			}
			w.WriteHeader(http.StatusBadGateway)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/turns", nil)
	req.Header = headers
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	traceID := rec.Header().Get("X-Trace-ID")
	if traceID != TraceID(upstream) {
		t.Errorf("X-Trace-ID = %q, want propagated %q", traceID, TraceID(upstream))
	}

	_ = tracer.ForceFlush(context.Background())
	var server *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "HTTP POST /v1/chat/turns" {
			server = &spans[i]
		}
	}
	if server == nil {
		t.Fatalf("server span not recorded, got %d spans", len(spans))
	}
	if server.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error for 502", server.Status.Code)
	}
}
