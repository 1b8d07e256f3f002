// Package observe wires hark to OpenTelemetry: metric instruments, spans,
// trace-aware logging and the status-server middleware.
//
// [Setup] installs the SDK providers and a Prometheus exporter scraped on
// /metrics. Components take a [*Metrics]; tests build one with [NewMetrics]
// over a private provider so their readings stay isolated.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/hark"

// Metrics holds the application's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// ── stage latency ──

	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	// TTSDuration covers synthesis and playback.
	TTSDuration metric.Float64Histogram
	// TurnDuration runs from segment hand-off to the end of the reply.
	TurnDuration metric.Float64Histogram

	// ── capture ──

	SegmentDuration metric.Float64Histogram
	SegmentsEmitted metric.Int64Counter
	// SegmentsDropped counts segments replaced before a consumer took them.
	SegmentsDropped metric.Int64Counter
	CaptureOverruns metric.Int64Counter
	// SpeechActive is 1 while an utterance is in progress.
	SpeechActive metric.Int64UpDownCounter

	// ── providers and turns ──

	// ProviderRequests is labelled provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors is labelled provider and kind.
	ProviderErrors metric.Int64Counter
	// Turns is labelled outcome.
	Turns metric.Int64Counter

	// HTTPRequestDuration is labelled method, path and status.
	HTTPRequestDuration metric.Float64Histogram
}

// Bucket boundaries in seconds.
var (
	latencyBuckets   = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	utteranceBuckets = []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30}
)

// instruments creates instruments on one meter and collects the errors, so
// NewMetrics reports every failure at once.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return g
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration:  in.seconds("hark.stt.duration", "Speech-to-text latency.", latencyBuckets),
		LLMDuration:  in.seconds("hark.llm.duration", "LLM completion latency.", latencyBuckets),
		TTSDuration:  in.seconds("hark.tts.duration", "Synthesis and playback latency.", latencyBuckets),
		TurnDuration: in.seconds("hark.turn.duration", "Time from segment hand-off to the end of the reply.", latencyBuckets),

		SegmentDuration: in.seconds("hark.segment.duration", "Audio length of emitted segments.", utteranceBuckets),
		SegmentsEmitted: in.counter("hark.segments.emitted", "Segments handed to the consumer."),
		SegmentsDropped: in.counter("hark.segments.dropped", "Segments replaced before a consumer took them."),
		CaptureOverruns: in.counter("hark.capture.overruns", "Recoverable input overruns."),
		SpeechActive:    in.gauge("hark.speech.active", "1 while an utterance is in progress."),

		ProviderRequests: in.counter("hark.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   in.counter("hark.provider.errors", "Failed provider calls by provider and kind."),
		Turns:            in.counter("hark.turns", "Conversation turns by outcome."),

		HTTPRequestDuration: in.seconds("hark.http.request.duration", "Status server request latency.", nil),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] on [otel.GetMeterProvider],
// created on first use. Call [Setup] first so it binds to the exporter. It
// panics if the global provider rejects an instrument.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status),
	))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordSegment counts one emitted segment and records its audio length.
func (m *Metrics) RecordSegment(ctx context.Context, length time.Duration) {
	m.SegmentsEmitted.Add(ctx, 1)
	m.SegmentDuration.Record(ctx, length.Seconds())
}

func (m *Metrics) RecordSegmentDropped(ctx context.Context) { m.SegmentsDropped.Add(ctx, 1) }

func (m *Metrics) RecordOverrun(ctx context.Context) { m.CaptureOverruns.Add(ctx, 1) }

// RecordSpeechActive moves the speech gauge: +1 on onset, -1 on offset.
func (m *Metrics) RecordSpeechActive(ctx context.Context, delta int64) { m.SpeechActive.Add(ctx, delta) }

func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordStage records one provider call of kind "stt", "llm" or "tts": its
// latency in the matching histogram, a request count and, when err is set,
// an error count.
func (m *Metrics) RecordStage(ctx context.Context, kind, provider string, d time.Duration, err error) {
	var h metric.Float64Histogram
	switch kind {
	case "stt":
		h = m.STTDuration
	case "llm":
		h = m.LLMDuration
	case "tts":
		h = m.TTSDuration
	}
	if h != nil {
		h.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider)))
	}

	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}
