// ABOUTME: Slice iterator telemetry metrics interface and implementation for row slice reads
// ABOUTME: Tracks reader strategy choice, atoms and blocks read per slice, corruption and close failures

package slice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/KevoDB/rowslice/pkg/telemetry"
)

// SliceMetrics defines the interface for slice iterator telemetry.
// All metrics are optional - implementations can safely be no-op.
type SliceMetrics interface {
	telemetry.ComponentMetrics

	// StartSliceSpan starts the span covering one slice, from strategy
	// selection until the iterator is closed.
	StartSliceSpan(ctx context.Context, key []byte, strategy Strategy, reversed bool) (context.Context, trace.Span)

	// RecordStrategy records which reader was chosen for a slice.
	RecordStrategy(ctx context.Context, strategy Strategy, reversed bool)

	// RecordSliceComplete records the work done by a slice once it is closed.
	RecordSliceComplete(ctx context.Context, strategy Strategy, atoms int64, blocks int64, duration time.Duration)

	// RecordCorruption records a row that failed to decode.
	RecordCorruption(ctx context.Context, strategy Strategy)

	// RecordCloseFailure records a cursor that failed to close.
	RecordCloseFailure(ctx context.Context)
}

// sliceMetrics implements SliceMetrics using the telemetry interface.
type sliceMetrics struct {
	tel telemetry.Telemetry
}

// NewSliceMetrics creates a new slice metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewSliceMetrics(tel telemetry.Telemetry) SliceMetrics {
	if tel == nil {
		return &noopSliceMetrics{}
	}
	return &sliceMetrics{tel: tel}
}

// NewNoopSliceMetrics creates a no-op slice metrics implementation for testing.
func NewNoopSliceMetrics() SliceMetrics {
	return &noopSliceMetrics{}
}

// StartSliceSpan starts a slice span tagged with the key and strategy.
func (m *sliceMetrics) StartSliceSpan(ctx context.Context, key []byte, strategy Strategy, reversed bool) (context.Context, trace.Span) {
	return m.tel.StartSpan(ctx, "slice.read",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrRowKey, string(key)),
		attribute.String(telemetry.AttrStrategy, strategy.String()),
		attribute.Bool(telemetry.AttrReversed, reversed),
	)
}

// RecordStrategy records reader selection.
func (m *sliceMetrics) RecordStrategy(ctx context.Context, strategy Strategy, reversed bool) {
	m.tel.RecordCounter(ctx, "kevo.slice.strategy.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrStrategy, strategy.String()),
		attribute.Bool(telemetry.AttrReversed, reversed),
	)
}

// RecordSliceComplete records per-slice totals.
func (m *sliceMetrics) RecordSliceComplete(ctx context.Context, strategy Strategy, atoms int64, blocks int64, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrStrategy, strategy.String()),
	}

	m.tel.RecordHistogram(ctx, "kevo.slice.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "kevo.slice.atoms.total", atoms, attrs...)

	// Only the indexed reader reads in blocks
	if strategy == StrategyIndexed {
		m.tel.RecordHistogram(ctx, "kevo.slice.blocks.read", float64(blocks), attrs...)
	}

	m.tel.RecordCounter(ctx, "kevo.slice.operations.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeSlice),
		attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess),
	)
}

// RecordCorruption records decode failures.
func (m *sliceMetrics) RecordCorruption(ctx context.Context, strategy Strategy) {
	m.tel.RecordCounter(ctx, "kevo.slice.corruption.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrStrategy, strategy.String()),
		attribute.String(telemetry.AttrStatus, telemetry.StatusError),
	)
}

// RecordCloseFailure records cursor release failures.
func (m *sliceMetrics) RecordCloseFailure(ctx context.Context) {
	m.tel.RecordCounter(ctx, "kevo.slice.close.errors.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSlice),
		attribute.String(telemetry.AttrErrorType, "close"),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *sliceMetrics) Close() error {
	return nil
}

// noopSliceMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopSliceMetrics struct{}

// StartSliceSpan returns ctx unchanged and a span that records nothing.
func (n *noopSliceMetrics) StartSliceSpan(ctx context.Context, key []byte, strategy Strategy, reversed bool) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(context.Background())
}

// RecordStrategy is a no-op.
func (n *noopSliceMetrics) RecordStrategy(ctx context.Context, strategy Strategy, reversed bool) {}

// RecordSliceComplete is a no-op.
func (n *noopSliceMetrics) RecordSliceComplete(ctx context.Context, strategy Strategy, atoms int64, blocks int64, duration time.Duration) {
}

// RecordCorruption is a no-op.
func (n *noopSliceMetrics) RecordCorruption(ctx context.Context, strategy Strategy) {}

// RecordCloseFailure is a no-op.
func (n *noopSliceMetrics) RecordCloseFailure(ctx context.Context) {}

// Close is a no-op.
func (n *noopSliceMetrics) Close() error {
	return nil
}
