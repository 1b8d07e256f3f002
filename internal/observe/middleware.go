package observe

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// Middleware instruments the status endpoints (/metrics, /healthz, /readyz).
//
// otelhttp starts a server span per request, continuing a W3C traceparent
// when the caller sent one. Inside that span the handler sets the
// X-Correlation-ID response header, records [Metrics.HTTPRequestDuration]
// and logs the completed request at debug level, since scrapers hit these
// endpoints constantly.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			stats := httpsnoop.CaptureMetrics(next, w, r)

			m.HTTPRequestDuration.Record(ctx, stats.Duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
					attribute.Int("status", stats.Code),
				),
			)
			Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", stats.Code),
				slog.Int64("bytes", stats.Written),
				slog.Duration("duration", stats.Duration),
			)
		})

		return otelhttp.NewHandler(inner, "http",
			otelhttp.WithPropagators(propagation.TraceContext{}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "HTTP " + r.Method + " " + r.URL.Path
			}),
		)
	}
}
