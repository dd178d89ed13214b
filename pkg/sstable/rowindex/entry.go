// Package rowindex describes where a partition's row lives in the data file and
// how its atoms are split into index blocks.
package rowindex

import (
	"fmt"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// IndexInfo summarises one contiguous block of a row's serialized atoms
type IndexInfo struct {
	// FirstName is the bound of the first atom in the block
	FirstName []byte
	// LastName is the bound of the last atom in the block
	LastName []byte
	// Offset is the block start relative to the row's Position
	Offset int64
	// Width is the number of bytes the block's atoms occupy
	Width int64
}

// String returns a short description of the block
func (ii IndexInfo) String() string {
	return fmt.Sprintf("[%s..%s]@%d+%d", ii.FirstName, ii.LastName, ii.Offset, ii.Width)
}

// Entry is the row index entry for one partition. It is immutable once built
// and may be shared by concurrent readers.
type Entry struct {
	// Position is the absolute offset of the row header in the data file
	Position int64
	// Deletion is the row-level deletion, duplicated from the row header so
	// indexed reads can skip reading the header
	Deletion atom.DeletionTime
	// Blocks is non-empty only for rows large enough to be split
	Blocks []IndexInfo
}

// IsIndexed reports whether the entry carries block summaries
func (e *Entry) IsIndexed() bool {
	return len(e.Blocks) > 0
}

// MaxBlockWidth returns the widest block in the entry, or 0 without blocks
func (e *Entry) MaxBlockWidth() int64 {
	var max int64
	for _, b := range e.Blocks {
		if b.Width > max {
			max = b.Width
		}
	}
	return max
}

// BlockPosition returns the absolute data file offset of block i
func (e *Entry) BlockPosition(i int) int64 {
	return e.Position + e.Blocks[i].Offset
}
