package rowindex

import (
	"errors"
	"fmt"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// DefaultBlockSize is the number of atom bytes after which a block is closed
const DefaultBlockSize = 64 * 1024

var (
	// ErrOutOfOrder is returned when atoms are not added in strictly increasing bound order
	ErrOutOfOrder = errors.New("atoms must be added in strictly increasing order")
	// ErrEmptyName is returned for atoms without a bound; an empty bound means "unbounded"
	ErrEmptyName = errors.New("atom name must not be empty")
)

// Builder serializes one row and records its index blocks as it goes
type Builder struct {
	deletion  atom.DeletionTime
	blockSize int64
	data      []byte

	blocks     []IndexInfo
	blockStart int64
	blockFirst []byte
	lastName   []byte
	atoms      int
}

// NewBuilder starts a row for key. blockSize <= 0 selects DefaultBlockSize.
func NewBuilder(key []byte, deletion atom.DeletionTime, blockSize int) *Builder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	h := &atom.RowHeader{Key: key, Deletion: deletion}
	return &Builder{
		deletion:  deletion,
		blockSize: int64(blockSize),
		data:      h.AppendFrame(nil),
	}
}

// Add appends an atom to the row
func (b *Builder) Add(a *atom.Atom) error {
	if len(a.Bound()) == 0 {
		return ErrEmptyName
	}
	if b.atoms > 0 && atom.Compare(a.Bound(), b.lastName) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, a.Bound(), b.lastName)
	}

	if b.blockFirst == nil {
		b.blockStart = int64(len(b.data))
		b.blockFirst = append([]byte{}, a.Bound()...)
	}

	b.data = a.AppendFrame(b.data)
	b.lastName = append(b.lastName[:0], a.Bound()...)
	b.atoms++

	if int64(len(b.data))-b.blockStart >= b.blockSize {
		b.closeBlock()
	}
	return nil
}

func (b *Builder) closeBlock() {
	if b.blockFirst == nil {
		return
	}
	b.blocks = append(b.blocks, IndexInfo{
		FirstName: b.blockFirst,
		LastName:  append([]byte(nil), b.lastName...),
		Offset:    b.blockStart,
		Width:     int64(len(b.data)) - b.blockStart,
	})
	b.blockFirst = nil
}

// Atoms returns the number of atoms added so far
func (b *Builder) Atoms() int {
	return b.atoms
}

// Size returns the serialized size of the row so far
func (b *Builder) Size() int {
	return len(b.data)
}

// Finish terminates the row and returns its bytes and an entry for position.
// Block summaries are kept only when the row spans more than one block.
func (b *Builder) Finish(position int64) ([]byte, *Entry) {
	b.closeBlock()
	b.data = atom.AppendRowEnd(b.data)

	e := &Entry{Position: position, Deletion: b.deletion}
	if len(b.blocks) > 1 {
		e.Blocks = b.blocks
	}
	return b.data, e
}
