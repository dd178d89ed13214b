// Package atom defines the units a row is made of on disk and their framed encoding.
//
// A row is stored as a header frame (partition key and row-level deletion),
// followed by its atoms in ascending bound order, followed by a row-end frame.
package atom

import (
	"bytes"
	"fmt"
	"math"
)

// Kind identifies the type of a frame payload
type Kind uint8

const (
	// KindRowEnd terminates a row
	KindRowEnd Kind = iota
	// KindColumn is a live column carrying a value
	KindColumn
	// KindTombstone is a deleted column
	KindTombstone
	// KindRangeTombstone deletes every column in [Name, End]
	KindRangeTombstone
	// KindRowHeader opens a row
	KindRowHeader
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindRowEnd:
		return "ROW_END"
	case KindColumn:
		return "COLUMN"
	case KindTombstone:
		return "TOMBSTONE"
	case KindRangeTombstone:
		return "RANGE_TOMBSTONE"
	case KindRowHeader:
		return "ROW_HEADER"
	default:
		return fmt.Sprintf("KIND(%d)", k)
	}
}

// DeletionTime records when a row or range was deleted
type DeletionTime struct {
	// MarkedForDeleteAt is the write timestamp of the deletion
	MarkedForDeleteAt int64
	// LocalDeletionTime is the wall-clock second the deletion was applied
	LocalDeletionTime int32
}

// LiveDeletion is the deletion time of something that was never deleted
var LiveDeletion = DeletionTime{
	MarkedForDeleteAt: math.MinInt64,
	LocalDeletionTime: math.MaxInt32,
}

// IsLive reports whether d marks nothing as deleted
func (d DeletionTime) IsLive() bool {
	return d == LiveDeletion
}

// Shadows reports whether a write at timestamp ts is covered by this deletion
func (d DeletionTime) Shadows(ts int64) bool {
	return !d.IsLive() && ts <= d.MarkedForDeleteAt
}

// RowHeader is the row-level metadata stored ahead of a row's atoms
type RowHeader struct {
	Key      []byte
	Deletion DeletionTime
}

// Atom is one decoded unit of row content
type Atom struct {
	Kind Kind
	// Name is the column name, or the range start for range tombstones
	Name []byte
	// Value is set for KindColumn only
	Value []byte
	// Timestamp is the write timestamp for columns and tombstones
	Timestamp int64
	// End is the inclusive range end for KindRangeTombstone
	End []byte
	// DeletedAt is the deletion timestamp for KindRangeTombstone
	DeletedAt int64
}

// NewColumn creates a live column
func NewColumn(name, value []byte, timestamp int64) *Atom {
	return &Atom{Kind: KindColumn, Name: name, Value: value, Timestamp: timestamp}
}

// NewTombstone creates a deleted column
func NewTombstone(name []byte, timestamp int64) *Atom {
	return &Atom{Kind: KindTombstone, Name: name, Timestamp: timestamp}
}

// NewRangeTombstone creates a deletion covering [start, end]
func NewRangeTombstone(start, end []byte, deletedAt int64) *Atom {
	return &Atom{Kind: KindRangeTombstone, Name: start, End: end, DeletedAt: deletedAt}
}

// Bound returns the value used to order the atom within its row
func (a *Atom) Bound() []byte {
	return a.Name
}

// IsLive reports whether the atom is a column with a value
func (a *Atom) IsLive() bool {
	return a.Kind == KindColumn
}

// String returns a short human-readable form of the atom
func (a *Atom) String() string {
	switch a.Kind {
	case KindColumn:
		return fmt.Sprintf("%s=%s@%d", a.Name, a.Value, a.Timestamp)
	case KindTombstone:
		return fmt.Sprintf("%s=<deleted>@%d", a.Name, a.Timestamp)
	case KindRangeTombstone:
		return fmt.Sprintf("[%s..%s]<deleted>@%d", a.Name, a.End, a.DeletedAt)
	default:
		return a.Kind.String()
	}
}

// Compare orders bounds; atoms in a row are stored in ascending Compare order
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// InRange reports whether bound lies in [start, finish], treating an empty
// start or finish as unbounded on that side
func InRange(bound, start, finish []byte) bool {
	if len(start) > 0 && Compare(bound, start) < 0 {
		return false
	}
	if len(finish) > 0 && Compare(bound, finish) > 0 {
		return false
	}
	return true
}
