package observability

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tixgate/actionset/internal/config"
)

func TestInitTracing_disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "actionset", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown error = %v", err)
	}
}

func TestNewExporter_unsupported(t *testing.T) {
	_, err := newExporter(context.Background(), config.TracingConfig{Exporter: "jaeger"})
	if err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{"full rate samples everything", 1.0, sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{"zero rate falls back to default", 0, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))},
		{"partial rate", 0.5, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newSampler(config.TracingConfig{SamplingRate: tt.rate})
			if got.Description() != tt.want.Description() {
				t.Errorf("sampler = %q, want %q", got.Description(), tt.want.Description())
			}
		})
	}
}

func TestTraceIDFromContext_noSpan(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext = %q, want empty", got)
	}
	if got := SpanIDFromContext(context.Background()); got != "" {
		t.Errorf("SpanIDFromContext = %q, want empty", got)
	}
}
