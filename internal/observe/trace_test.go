package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestTraceID_EmptyByDefault(t *testing.T) {
	t.Parallel()
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
}

func TestTraceID_ReturnsHexTraceID(t *testing.T) {
	t.Parallel()
	tp, _ := newTestTracerProvider(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	tid := TraceID(ctx)
	if len(tid) != 32 {
		t.Fatalf("trace ID length = %d, want 32", len(tid))
	}
	if strings.Trim(tid, "0123456789abcdef") != "" {
		t.Errorf("trace ID %q is not lowercase hex", tid)
	}
}

// Not parallel: swaps the global tracer provider.
func TestStartSpan_CreatesSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "practice.session")
	if TraceID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "practice.session" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "practice.session")
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestLogger(t *testing.T) {
	t.Parallel()
	tp, _ := newTestTracerProvider(t)
	spanCtx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	defer span.End()

	tests := []struct {
		name      string
		ctx       context.Context
		wantTrace bool
	}{
		{"with span", spanCtx, true},
		{"without span", context.Background(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			base := slog.New(slog.NewTextHandler(&buf, nil)).With("component", "test")

			Logger(tt.ctx, base).Info("hello")

			out := buf.String()
			if !strings.Contains(out, "component=test") {
				t.Errorf("base attributes lost: %s", out)
			}
			if got := strings.Contains(out, "trace_id=") && strings.Contains(out, "span_id="); got != tt.wantTrace {
				t.Errorf("trace attributes present = %v, want %v: %s", got, tt.wantTrace, out)
			}
		})
	}
}

func TestLogger_NilBaseUsesDefault(t *testing.T) {
	t.Parallel()
	if Logger(context.Background(), nil) != slog.Default() {
		t.Error("expected slog.Default for nil base without span")
	}
}

func TestInitProvider_RejectsBadSampleRatio(t *testing.T) {
	t.Parallel()
	if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: 1.5}); err == nil {
		t.Error("expected error for sample ratio > 1")
	}
}
