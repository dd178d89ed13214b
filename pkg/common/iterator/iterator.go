package iterator

import (
	"errors"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

var (
	// ErrExhausted is returned by Next when no atom remains
	ErrExhausted = errors.New("iterator exhausted")

	// ErrUnsupportedOperation is returned by Remove on read-only iterators
	ErrUnsupportedOperation = errors.New("operation not supported by read-only iterator")
)

// AtomIterator is a one-shot, pull-based cursor over a slice of one row's atoms.
// Query execution consumes every slice reader through this interface regardless
// of how the reader locates and decodes the row. Implementations are not safe
// for concurrent use.
type AtomIterator interface {
	// Key returns the partition key the slice belongs to
	Key() []byte

	// RowHeader returns the row-level metadata, or nil when the row is absent
	RowHeader() *atom.RowHeader

	// HasNext reports whether another atom remains. It may decode one atom of
	// lookahead, which the following Next returns.
	HasNext() (bool, error)

	// Next returns the next atom, or ErrExhausted when none remains
	Next() (*atom.Atom, error)

	// Remove is part of the contract for symmetry with mutable iterators and
	// always fails with ErrUnsupportedOperation
	Remove() error

	// Close releases resources held by the iterator. It is idempotent.
	Close() error
}
