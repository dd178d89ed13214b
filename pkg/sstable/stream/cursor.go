package stream

import (
	"fmt"
	"io"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// DefaultBufferSize is the read-ahead window of a cursor
const DefaultBufferSize = 4 * 1024

// Cursor is a buffered, seekable, read-only view over a Source. A cursor owns
// its source and closes it on Close. It is not safe for concurrent use.
type Cursor struct {
	src Source
	pos int64

	buf      []byte
	bufStart int64
	bufLen   int

	scratch   []byte
	bytesRead int64
	closed    bool
}

// NewCursor creates a cursor positioned at offset 0
func NewCursor(src Source, bufferSize int) *Cursor {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Cursor{
		src: src,
		buf: make([]byte, bufferSize),
	}
}

// Seek positions the cursor at an absolute logical offset
func (c *Cursor) Seek(offset int64) error {
	if c.closed {
		return ErrClosed
	}
	if offset < 0 || offset > c.src.Size() {
		return fmt.Errorf("seek offset %d outside [0, %d]", offset, c.src.Size())
	}
	c.pos = offset
	return nil
}

// Position returns the current logical offset
func (c *Cursor) Position() int64 {
	return c.pos
}

// Size returns the logical length of the underlying source
func (c *Cursor) Size() int64 {
	return c.src.Size()
}

// BytesRead returns the number of bytes fetched from the source so far
func (c *Cursor) BytesRead() int64 {
	return c.bytesRead
}

// Read implements io.Reader from the current position
func (c *Cursor) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if c.pos >= c.src.Size() {
		return 0, io.EOF
	}

	if c.pos < c.bufStart || c.pos >= c.bufStart+int64(c.bufLen) {
		if err := c.fill(); err != nil {
			return 0, err
		}
	}

	off := int(c.pos - c.bufStart)
	n := copy(p, c.buf[off:c.bufLen])
	c.pos += int64(n)
	return n, nil
}

// fill loads the read-ahead window starting at the current position
func (c *Cursor) fill() error {
	want := len(c.buf)
	if remaining := c.src.Size() - c.pos; remaining < int64(want) {
		want = int(remaining)
	}

	n, err := c.src.ReadAt(c.buf[:want], c.pos)
	if err != nil && (err != io.EOF || n == 0) {
		c.bufLen = 0
		return err
	}
	if n == 0 {
		return io.ErrNoProgress
	}

	c.bufStart = c.pos
	c.bufLen = n
	c.bytesRead += int64(n)
	return nil
}

// ReadAtom decodes the frame at the current position. A nil atom with a nil
// error means the row-end marker was read. n is the number of bytes consumed.
func (c *Cursor) ReadAtom() (a *atom.Atom, n int, err error) {
	payload, n, err := atom.ReadFrame(c, c.scratch)
	if err != nil {
		return nil, n, err
	}
	c.keepScratch(payload)

	a, err = atom.DecodeAtom(payload)
	if err != nil {
		return nil, n, err
	}
	return a, n, nil
}

// ReadRowHeader decodes the row header frame at the current position
func (c *Cursor) ReadRowHeader() (*atom.RowHeader, int, error) {
	payload, n, err := atom.ReadFrame(c, c.scratch)
	if err != nil {
		return nil, n, err
	}
	c.keepScratch(payload)

	h, err := atom.DecodeRowHeader(payload)
	if err != nil {
		return nil, n, err
	}
	return h, n, nil
}

func (c *Cursor) keepScratch(payload []byte) {
	if cap(payload) > cap(c.scratch) {
		c.scratch = payload[:0]
	}
}

// Closed reports whether Close has been called
func (c *Cursor) Closed() bool {
	return c.closed
}

// Close releases the underlying source. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf = nil
	c.bufLen = 0
	return c.src.Close()
}
