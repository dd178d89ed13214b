package slice

import (
	"errors"
	"fmt"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
)

// Cursor is the byte-stream view a slice reader decodes a row from.
// *stream.Cursor implements it.
type Cursor interface {
	Seek(offset int64) error
	Position() int64
	ReadAtom() (*atom.Atom, int, error)
	ReadRowHeader() (*atom.RowHeader, int, error)
	Close() error
}

// CursorOpener opens a fresh cursor positioned at offset. The caller owns it.
type CursorOpener interface {
	OpenCursor(offset int64) (*stream.Cursor, error)
}

var errNoCursor = errors.New("no cursor supplied and no cursor opener configured")

type ownership uint8

const (
	// borrowed cursors belong to the caller and are never closed here
	borrowed ownership = iota
	// owned cursors were opened by the iterator and are closed with it
	owned
)

func (o ownership) String() string {
	if o == owned {
		return "owned"
	}
	return "borrowed"
}

// cursorHandle carries a cursor together with who is responsible for closing it
type cursorHandle struct {
	cursor    Cursor
	ownership ownership
}

// acquireCursor positions supplied at offset, or opens a new cursor there when
// supplied is nil
func acquireCursor(opener CursorOpener, supplied Cursor, offset int64) (cursorHandle, error) {
	if supplied != nil {
		if err := supplied.Seek(offset); err != nil {
			return cursorHandle{}, fmt.Errorf("failed to seek to row at %d: %w", offset, err)
		}
		return cursorHandle{cursor: supplied, ownership: borrowed}, nil
	}

	if opener == nil {
		return cursorHandle{}, errNoCursor
	}
	c, err := opener.OpenCursor(offset)
	if err != nil {
		return cursorHandle{}, fmt.Errorf("failed to open cursor at %d: %w", offset, err)
	}
	return cursorHandle{cursor: c, ownership: owned}, nil
}

// seekTo moves the cursor to offset unless it is already there. A borrowed
// cursor may have been moved by a sibling reader between calls.
func (h *cursorHandle) seekTo(offset int64) error {
	if h.cursor.Position() == offset {
		return nil
	}
	return h.cursor.Seek(offset)
}

// release closes the cursor if the iterator owns it. It is safe to call twice.
func (h *cursorHandle) release() error {
	c := h.cursor
	h.cursor = nil
	if c == nil || h.ownership != owned {
		return nil
	}
	return c.Close()
}
