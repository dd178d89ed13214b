package rowindex

import (
	"sort"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// BlockRange is an inclusive run of block indexes. It is empty when First > Last.
type BlockRange struct {
	First int
	Last  int
}

// Empty reports whether the range selects no block
func (r BlockRange) Empty() bool {
	return r.First > r.Last
}

// Len returns the number of selected blocks
func (r BlockRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Last - r.First + 1
}

// SelectBlocks returns the run of blocks that may hold atoms in [start, finish].
// An empty start or finish is unbounded on that side.
//
// Every atom of block i is greater than LastName of block i-1 and no greater than
// its own LastName, so the first candidate is the first block whose LastName
// reaches start, and the last candidate is the first block whose LastName reaches
// finish, unless that block begins after finish.
func SelectBlocks(blocks []IndexInfo, start, finish []byte) BlockRange {
	n := len(blocks)
	if n == 0 {
		return BlockRange{First: 0, Last: -1}
	}

	first := 0
	if len(start) > 0 {
		first = sort.Search(n, func(i int) bool {
			return atom.Compare(blocks[i].LastName, start) >= 0
		})
	}

	last := n - 1
	if len(finish) > 0 {
		last = sort.Search(n, func(i int) bool {
			return atom.Compare(blocks[i].LastName, finish) >= 0
		})
		if last == n {
			last = n - 1
		}
		if atom.Compare(blocks[last].FirstName, finish) > 0 {
			last--
		}
	}

	return BlockRange{First: first, Last: last}
}
