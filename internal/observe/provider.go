package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures [Setup].
type ProviderConfig struct {
	// ServiceName is reported as service.name. Default: "hark".
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// SpanExporter receives finished spans in batches. Nil keeps spans
	// in-process only; they still carry the trace IDs used in logs.
	SpanExporter sdktrace.SpanExporter

	// SkipRuntimeMetrics leaves the Go runtime and process collectors off
	// the scrape registry.
	SkipRuntimeMetrics bool
}

// Telemetry owns the SDK providers installed by [Setup] and the Prometheus
// registry they export to.
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
}

// Setup builds meter and tracer providers, installs them as the OTel globals
// together with the W3C trace-context propagator, and returns the handle
// that serves and shuts them down. Call it before [DefaultMetrics] so the
// default instruments bind to the exporting provider.
func Setup(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hark"
	}

	// Schemaless so the merge never conflicts with the SDK default's schema URL.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	if !cfg.SkipRuntimeMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		registry: reg,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	t.tracer = sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracer)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// MeterProvider returns the exporting meter provider, for [NewMetrics].
func (t *Telemetry) MeterProvider() *sdkmetric.MeterProvider { return t.meters }

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          t.registry,
	})
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracer.Shutdown(ctx), t.meters.Shutdown(ctx))
}
