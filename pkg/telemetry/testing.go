// ABOUTME: Test telemetry backed by an in-memory OpenTelemetry reader so tests can assert on recorded values
// ABOUTME: Also provides disabled telemetry for testing components that must work without instrumentation

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is a real provider whose metrics are collected on demand
// instead of being exported.
type TestTelemetry struct {
	*TelemetryProvider
	reader *sdkmetric.ManualReader
	spans  *tracetest.SpanRecorder
}

// NewForTesting returns telemetry that records into memory. Every span is
// sampled and kept for Spans.
func NewForTesting() *TestTelemetry {
	res := sdkresource.NewSchemaless(attribute.String("service.name", "test"))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spans),
	)

	return &TestTelemetry{
		TelemetryProvider: &TelemetryProvider{
			meterProvider:  meterProvider,
			tracerProvider: tracerProvider,
			meter:          meterProvider.Meter(instrumentationName),
			tracer:         tracerProvider.Tracer(instrumentationName),
			resource:       res,
			histograms:     make(map[string]metric.Float64Histogram),
			counters:       make(map[string]metric.Int64Counter),
		},
		reader: reader,
		spans:  spans,
	}
}

// NewDisabled returns no-op telemetry for tests of components that must work
// with instrumentation switched off.
func NewDisabled() Telemetry {
	return NewNoop()
}

func (t *TestTelemetry) collect(name string) (metricdata.Aggregation, bool) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		return nil, false
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data, true
			}
		}
	}
	return nil, false
}

// Counter returns the total of counter name across all attribute sets, or 0
// if it was never recorded.
func (t *TestTelemetry) Counter(name string) int64 {
	data, ok := t.collect(name)
	if !ok {
		return 0
	}
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// HistogramCount returns how many values histogram name received
func (t *TestTelemetry) HistogramCount(name string) uint64 {
	data, ok := t.collect(name)
	if !ok {
		return 0
	}
	h, ok := data.(metricdata.Histogram[float64])
	if !ok {
		return 0
	}
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	return count
}

// Spans returns the spans ended so far, in the order they ended
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.spans.Ended()
}
