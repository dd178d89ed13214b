package sstable

import (
	"context"
	"time"

	"github.com/KevoDB/rowslice/pkg/sstable/slice"
	"github.com/KevoDB/rowslice/pkg/stats"
)

// trackedMetrics forwards slice metrics and mirrors them into a stats collector
type trackedMetrics struct {
	slice.SliceMetrics
	stats stats.Collector
}

func newTrackedMetrics(m slice.SliceMetrics, c stats.Collector) slice.SliceMetrics {
	if m == nil {
		m = slice.NewNoopSliceMetrics()
	}
	if c == nil {
		return m
	}
	return &trackedMetrics{SliceMetrics: m, stats: c}
}

func (t *trackedMetrics) RecordSliceComplete(ctx context.Context, strategy slice.Strategy, atoms int64, blocks int64, duration time.Duration) {
	t.SliceMetrics.RecordSliceComplete(ctx, strategy, atoms, blocks, duration)
	t.stats.TrackOperationWithLatency(stats.OpSlice, duration)
	t.stats.TrackAtoms(uint64(atoms))
	t.stats.TrackBlocks(uint64(blocks))
}

func (t *trackedMetrics) RecordCorruption(ctx context.Context, strategy slice.Strategy) {
	t.SliceMetrics.RecordCorruption(ctx, strategy)
	t.stats.TrackError(stats.ErrTypeCorruption)
}

func (t *trackedMetrics) RecordCloseFailure(ctx context.Context) {
	t.SliceMetrics.RecordCloseFailure(ctx)
	t.stats.TrackError(stats.ErrTypeClose)
}

func (o Options) track(op stats.OperationType) {
	if o.Stats != nil {
		o.Stats.TrackOperation(op)
	}
}
