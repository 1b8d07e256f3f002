package observe

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureDefaultLog points slog.Default at a buffer until the test ends.
func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartSpan(context.Background(), "app.turn")
	cid := CorrelationID(ctx)
	span.End()

	if !hexID.MatchString(cid) {
		t.Errorf("CorrelationID = %q, want 32 lowercase hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "app.turn" {
		t.Fatalf("recorded spans = %v", spans)
	}
}

func TestCorrelationID_WithoutSpan(t *testing.T) {
	t.Parallel()
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestCorrelationID_DistinctPerTrace(t *testing.T) {
	useTracer(t)

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "turn")
		id := CorrelationID(ctx)
		span.End()
		if seen[id] {
			t.Fatalf("trace id %s issued twice", id)
		}
		seen[id] = true
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	spanCtx, span := StartSpan(context.Background(), "log")
	defer span.End()

	tests := []struct {
		name      string
		ctx       context.Context
		wantTrace bool
	}{
		{"inside span", spanCtx, true},
		{"no span", context.Background(), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureDefaultLog(t)
			Logger(tc.ctx).Info("heard", "text", "hello")

			out := buf.String()
			if !strings.Contains(out, "text=hello") {
				t.Errorf("record missing own attrs: %s", out)
			}
			for _, key := range []string{"trace_id=", "span_id="} {
				if got := strings.Contains(out, key); got != tc.wantTrace {
					t.Errorf("contains %s = %v, want %v: %s", key, got, tc.wantTrace, out)
				}
			}
		})
	}
}
