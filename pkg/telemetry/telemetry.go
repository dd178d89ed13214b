// ABOUTME: Telemetry interface used by the table reader and slice iterators, with a no-op fallback
// ABOUTME: Defines the attribute keys and values shared by every instrumented read path component

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry records metrics and spans for the read path without exposing
// OpenTelemetry providers to the components that use it.
type Telemetry interface {
	// RecordHistogram records one value into histogram name.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter adds value to counter name.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan starts a span that the caller must end.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and stops any exporters.
	Shutdown(ctx context.Context) error
}

// ComponentMetrics is embedded by each component's metrics interface.
type ComponentMetrics interface {
	Close() error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop returns telemetry that records nothing.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns ctx unchanged with a non-recording span. The span is
// never the one already carried by ctx, so ending it cannot end a caller's span.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(context.Background())
}

func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// Attribute keys
const (
	AttrComponent     = "component"
	AttrOperationType = "operation.type"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"

	AttrRowKey   = "slice.row_key"
	AttrStrategy = "slice.strategy"
	AttrReversed = "slice.reversed"
)

// Attribute values
const (
	OpTypeSlice = "slice"

	StatusSuccess = "success"
	StatusError   = "error"

	ComponentSSTable = "sstable"
	ComponentSlice   = "slice"
)
