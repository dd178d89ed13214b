// Package stats keeps in-process counters for table reads and writes. Unlike
// the telemetry package it needs no exporter and can be inspected directly.
package stats

import "time"

// Provider exposes a snapshot of collected statistics keyed by name,
// e.g. "slice_ops" or "get_latency".
type Provider interface {
	GetStats() map[string]interface{}

	// GetStatsFiltered keeps only the keys starting with prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector is what the table reader and writer report into.
type Collector interface {
	Provider

	TrackOperation(op OperationType)
	TrackOperationWithLatency(op OperationType, latency time.Duration)

	// TrackError counts one failure of errorType (see the ErrType constants)
	TrackError(errorType string)

	// TrackAtoms adds to the number of atoms returned by slices
	TrackAtoms(n uint64)

	// TrackBlocks adds to the number of index blocks visited by slices
	TrackBlocks(n uint64)

	// TrackRows adds to the number of rows written
	TrackRows(n uint64)
}

var _ Collector = (*AtomicCollector)(nil)
