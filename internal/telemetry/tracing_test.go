package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSamplerForClampsRate(t *testing.T) {
	tests := []struct {
		rate float64
		root string
	}{
		{1, "root:AlwaysOnSampler"},
		{2.5, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{") || !strings.Contains(desc, tt.root) {
			t.Errorf("samplerFor(%v) = %s, want parent based with %s", tt.rate, desc, tt.root)
		}
	}
}

func TestServiceAttributesSkipEmptyValues(t *testing.T) {
	attrs := serviceAttributes(TracerConfig{ServiceName: "keygate", ServiceVersion: "0.1.0"})
	if len(attrs) != 2 {
		t.Fatalf("expected name and version only, got %v", attrs)
	}

	attrs = serviceAttributes(TracerConfig{
		ServiceName:    "keygate",
		ServiceVersion: "0.1.0",
		Environment:    "production",
		Commit:         "abc123",
		DBBackend:      "postgres",
	})
	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["deployment.environment"] != "production" || got["keygate.db.backend"] != "postgres" || got["keygate.commit"] != "abc123" {
		t.Fatalf("unexpected attributes %v", got)
	}
}

func TestDisabledTracerShutdownIsNoop(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{ServiceName: "keygate"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, span := StartSpan(context.Background(), "keygate/test", "noop")
	if span.SpanContext().IsSampled() {
		t.Fatal("expected no sampled spans with tracing disabled")
	}
	EndSpan(span, nil)
}
