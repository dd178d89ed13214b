package slice

import (
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
)

// forwardReader streams a row in storage order from its first atom and stops
// at the first atom past finish
type forwardReader struct {
	h      *cursorHandle
	finish []byte

	pos  int64
	prev []byte
	done bool
}

func newForwardReader(h *cursorHandle, acquire func(int64) error, key []byte, entry *rowindex.Entry, s Slice) (*forwardReader, *atom.RowHeader, error) {
	if err := acquire(entry.Position); err != nil {
		return nil, nil, err
	}
	hdr, pos, err := readHeader(h, key)
	if err != nil {
		return nil, nil, err
	}
	return &forwardReader{h: h, finish: s.Finish, pos: pos}, hdr, nil
}

func (r *forwardReader) next() (*atom.Atom, error) {
	if r.done {
		return nil, nil
	}
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
		r.done = true
		return nil, nil
	}
	if err := checkOrder(r.prev, a, at); err != nil {
		return nil, err
	}
	if len(r.finish) > 0 && atom.Compare(a.Bound(), r.finish) > 0 {
		r.done = true
		return nil, nil
	}
	r.prev = a.Bound()
	return a, nil
}

func (r *forwardReader) position() int64 {
	return r.pos
}

func (r *forwardReader) blocksRead() int64 {
	return 0
}
