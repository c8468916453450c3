package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// restoreGlobals puts the global providers back after a test that calls
// InitProvider.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInitProvider(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitProvider(ctx, ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
		TraceExporter:  exp,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordWord(ctx, "correct")
	_, span := StartSpan(ctx, "op")
	span.End()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "readalong_words") {
			found = true
		}
	}
	if !found {
		t.Error("readalong_words not exported to the Prometheus registry")
	}

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	name, ok := spans[0].Resource.Set().Value("service.name")
	if !ok || name.AsString() != "readalong" {
		t.Errorf("service.name = %v, want readalong", name.AsString())
	}
}

func TestInitProvider_InvalidSampleRatio(t *testing.T) {
	restoreGlobals(t)
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{
			Registerer:  prometheus.NewRegistry(),
			SampleRatio: ratio,
		}); err == nil {
			t.Errorf("ratio %v: expected error", ratio)
		}
	}
}
