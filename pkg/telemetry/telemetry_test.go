// ABOUTME: Tests for the no-op telemetry and the in-memory test telemetry used by component tests

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestNoopTelemetry(t *testing.T) {
	var tel Telemetry = NewNoop()
	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String(AttrComponent, ComponentSlice))
	tel.RecordCounter(ctx, "test.counter", 10)

	spanCtx, span := tel.StartSpan(ctx, "test.span")
	if spanCtx != ctx {
		t.Error("Expected StartSpan to return the caller's context")
	}
	if span.IsRecording() {
		t.Error("Expected a non-recording span")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestNoopSpanDoesNotEndParent(t *testing.T) {
	rec := NewForTesting()
	ctx := context.Background()
	defer rec.Shutdown(ctx)

	parentCtx, parent := rec.StartSpan(ctx, "parent")

	_, child := NewNoop().StartSpan(parentCtx, "child")
	child.End()

	if !parent.IsRecording() {
		t.Fatal("Ending the no-op span ended the parent span")
	}
	parent.End()
	if got := len(rec.Spans()); got != 1 {
		t.Errorf("Expected 1 ended span, got %d", got)
	}
}

func TestNewForTesting(t *testing.T) {
	tel := NewForTesting()
	ctx := context.Background()
	defer tel.Shutdown(ctx)

	if got := tel.Counter("test.counter"); got != 0 {
		t.Errorf("Expected unrecorded counter to read 0, got %d", got)
	}

	tel.RecordCounter(ctx, "test.counter", 2, attribute.String(AttrComponent, ComponentSlice))
	tel.RecordCounter(ctx, "test.counter", 3, attribute.String(AttrComponent, ComponentSSTable))
	tel.RecordHistogram(ctx, "test.histogram", 1.0)
	tel.RecordHistogram(ctx, "test.histogram", 2.0)

	if got := tel.Counter("test.counter"); got != 5 {
		t.Errorf("Expected counter total 5, got %d", got)
	}
	if got := tel.HistogramCount("test.histogram"); got != 2 {
		t.Errorf("Expected 2 histogram records, got %d", got)
	}
	if got := tel.Counter("test.histogram"); got != 0 {
		t.Errorf("Expected a histogram to read 0 as a counter, got %d", got)
	}
}

func TestNewForTestingRecordsSpans(t *testing.T) {
	tel := NewForTesting()
	ctx := context.Background()
	defer tel.Shutdown(ctx)

	_, span := tel.StartSpan(ctx, "slice.read", attribute.String(AttrStrategy, "indexed"))
	if !span.SpanContext().IsValid() {
		t.Fatal("Expected a sampled span")
	}
	span.RecordError(errors.New("boom"))
	span.SetStatus(codes.Error, "boom")
	span.End()

	spans := tel.Spans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "slice.read" {
		t.Errorf("Expected span slice.read, got %s", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", got.Status())
	}
	if len(got.Events()) != 1 {
		t.Errorf("Expected the recorded error as an event, got %d events", len(got.Events()))
	}
}

func TestNewDisabled(t *testing.T) {
	if _, ok := NewDisabled().(*NoopTelemetry); !ok {
		t.Error("Expected NewDisabled to return no-op telemetry")
	}
}
