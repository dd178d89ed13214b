package slice

import (
	"fmt"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
)

// span is a byte range of row atoms decoded as a unit. end < 0 means the span
// runs to the row-end marker.
type span struct {
	start int64
	end   int64
}

// indexedReader serves bounded and reversed slices. Indexed rows are read only
// through the blocks that can hold the range; small rows are one implicit
// block starting after the header.
type indexedReader struct {
	h      *cursorHandle
	start  []byte
	finish []byte

	spans    []span
	reversed bool
	cur      int
	pos      int64
	prev     []byte
	done     bool

	// reversed scans decode one block forward into buf and pop from the back
	buf []*atom.Atom

	blocks int64
}

func newIndexedReader(h *cursorHandle, acquire func(int64) error, key []byte, entry *rowindex.Entry, s Slice, bufferHint int) (*indexedReader, *atom.RowHeader, error) {
	r := &indexedReader{
		h:        h,
		start:    s.Start,
		finish:   s.Finish,
		reversed: s.Reversed,
	}

	var hdr *atom.RowHeader
	if entry.IsIndexed() {
		hdr = &atom.RowHeader{Key: key, Deletion: entry.Deletion}
		sel := rowindex.SelectBlocks(entry.Blocks, s.Start, s.Finish)
		if sel.Empty() {
			r.done = true
			return r, hdr, nil
		}
		r.spans = make([]span, 0, sel.Len())
		for i := sel.First; i <= sel.Last; i++ {
			pos := entry.BlockPosition(i)
			r.spans = append(r.spans, span{start: pos, end: pos + entry.Blocks[i].Width})
		}
		// No block holds more atoms than its width allows
		bufferHint = int(entry.MaxBlockWidth()/atom.MinFrameSize) + 1
		first := r.spans[0].start
		if r.reversed {
			first = r.spans[len(r.spans)-1].start
		}
		if err := acquire(first); err != nil {
			return nil, nil, err
		}
	} else {
		if err := acquire(entry.Position); err != nil {
			return nil, nil, err
		}
		var (
			pos int64
			err error
		)
		hdr, pos, err = readHeader(h, key)
		if err != nil {
			return nil, nil, err
		}
		r.spans = []span{{start: pos, end: -1}}
	}

	if r.reversed {
		r.cur = len(r.spans) - 1
		if bufferHint > 0 {
			r.buf = make([]*atom.Atom, 0, bufferHint)
		}
	} else {
		r.pos = r.spans[0].start
		r.blocks = 1
	}
	return r, hdr, nil
}

func (r *indexedReader) next() (*atom.Atom, error) {
	if r.reversed {
		return r.nextReversed()
	}
	return r.nextAscending()
}

func (r *indexedReader) nextAscending() (*atom.Atom, error) {
	for !r.done {
		sp := r.spans[r.cur]
		if sp.end >= 0 && r.pos == sp.end {
			r.cur++
			if r.cur == len(r.spans) {
				r.done = true
				break
			}
			r.pos = r.spans[r.cur].start
			r.blocks++
			continue
		}

		a, err := r.readAtom(sp)
		if err != nil {
			return nil, err
		}
		if a == nil {
			r.done = true
			break
		}
		if len(r.start) > 0 && atom.Compare(a.Bound(), r.start) < 0 {
			continue
		}
		if len(r.finish) > 0 && atom.Compare(a.Bound(), r.finish) > 0 {
			r.done = true
			break
		}
		return a, nil
	}
	return nil, nil
}

func (r *indexedReader) nextReversed() (*atom.Atom, error) {
	for len(r.buf) == 0 {
		if r.done || r.cur < 0 {
			r.done = true
			return nil, nil
		}
		if err := r.fill(r.spans[r.cur]); err != nil {
			return nil, err
		}
		r.cur--
	}

	last := len(r.buf) - 1
	a := r.buf[last]
	r.buf[last] = nil
	r.buf = r.buf[:last]
	return a, nil
}

// fill decodes the in-range atoms of one span into buf
func (r *indexedReader) fill(sp span) error {
	r.buf = r.buf[:0]
	r.pos = sp.start
	r.prev = nil
	r.blocks++

	for sp.end < 0 || r.pos < sp.end {
		a, err := r.readAtom(sp)
		if err != nil {
			return err
		}
		if a == nil {
			break
		}
		if len(r.start) > 0 && atom.Compare(a.Bound(), r.start) < 0 {
			continue
		}
		if len(r.finish) > 0 && atom.Compare(a.Bound(), r.finish) > 0 {
			break
		}
		r.buf = append(r.buf, a)
	}
	return nil
}

// readAtom decodes the atom at pos and checks it stays inside sp. A nil atom
// means the row-end marker, which is only legal in an implicit span.
func (r *indexedReader) readAtom(sp span) (*atom.Atom, error) {
	if err := r.h.seekTo(r.pos); err != nil {
		return nil, err
	}
	a, n, err := r.h.cursor.ReadAtom()
	if err != nil {
		return nil, err
	}
	at := r.pos
	r.pos += int64(n)

	if a == nil {
		if sp.end >= 0 {
			return nil, fmt.Errorf("%w: row ended at %d inside block ending at %d", atom.ErrCorrupt, at, sp.end)
		}
		return nil, nil
	}
	if sp.end >= 0 && r.pos > sp.end {
		return nil, fmt.Errorf("%w: atom at %d crosses block boundary %d", atom.ErrCorrupt, at, sp.end)
	}
	if err := checkOrder(r.prev, a, at); err != nil {
		return nil, err
	}
	r.prev = a.Bound()
	return a, nil
}

func (r *indexedReader) position() int64 {
	return r.pos
}

func (r *indexedReader) blocksRead() int64 {
	return r.blocks
}
