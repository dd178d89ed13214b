package rowindex

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// ErrInvalidEntry indicates a serialized entry could not be decoded
var ErrInvalidEntry = errors.New("invalid row index entry")

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// AppendEntry appends the serialized (key, entry) pair to dst.
//
// Format: key | position | markedForDeleteAt | localDeletionTime | block count | blocks...
// with each block as firstName | lastName | offset | width.
func AppendEntry(dst, key []byte, e *Entry) []byte {
	dst = appendBytes(dst, key)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Position))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Deletion.MarkedForDeleteAt))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(e.Deletion.LocalDeletionTime))
	dst = binary.AppendUvarint(dst, uint64(len(e.Blocks)))
	for _, b := range e.Blocks {
		dst = appendBytes(dst, b.FirstName)
		dst = appendBytes(dst, b.LastName)
		dst = binary.AppendUvarint(dst, uint64(b.Offset))
		dst = binary.AppendUvarint(dst, uint64(b.Width))
	}
	return dst
}

type entryDecoder struct {
	data []byte
	pos  int
	err  error
}

func (d *entryDecoder) fail(field string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: truncated %s at byte %d", ErrInvalidEntry, field, d.pos)
	}
}

func (d *entryDecoder) uvarint(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		d.fail(field)
		return 0
	}
	d.pos += n
	return v
}

func (d *entryDecoder) bytes(field string) []byte {
	l := d.uvarint(field)
	if d.err != nil {
		return nil
	}
	if uint64(len(d.data)-d.pos) < l {
		d.fail(field)
		return nil
	}
	out := append([]byte(nil), d.data[d.pos:d.pos+int(l)]...)
	d.pos += int(l)
	return out
}

func (d *entryDecoder) fixed(field string, size int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.data)-d.pos < size {
		d.fail(field)
		return nil
	}
	out := d.data[d.pos : d.pos+size]
	d.pos += size
	return out
}

// DecodeEntry decodes one (key, entry) pair from the front of data and reports
// how many bytes it used
func DecodeEntry(data []byte) (key []byte, e *Entry, n int, err error) {
	d := &entryDecoder{data: data}

	key = d.bytes("key")
	e = &Entry{}
	if b := d.fixed("position", 8); b != nil {
		e.Position = int64(binary.LittleEndian.Uint64(b))
	}
	if b := d.fixed("deletion timestamp", 8); b != nil {
		e.Deletion.MarkedForDeleteAt = int64(binary.LittleEndian.Uint64(b))
	}
	if b := d.fixed("local deletion time", 4); b != nil {
		e.Deletion.LocalDeletionTime = int32(binary.LittleEndian.Uint32(b))
	}

	count := d.uvarint("block count")
	if d.err == nil && count > uint64(len(data)) {
		return nil, nil, 0, fmt.Errorf("%w: block count %d exceeds entry size", ErrInvalidEntry, count)
	}
	if count > 0 && d.err == nil {
		e.Blocks = make([]IndexInfo, 0, count)
	}
	for i := uint64(0); i < count && d.err == nil; i++ {
		var b IndexInfo
		b.FirstName = d.bytes("block first name")
		b.LastName = d.bytes("block last name")
		b.Offset = int64(d.uvarint("block offset"))
		b.Width = int64(d.uvarint("block width"))
		e.Blocks = append(e.Blocks, b)
	}

	if d.err != nil {
		return nil, nil, 0, d.err
	}
	if err := Validate(e); err != nil {
		return nil, nil, 0, err
	}
	return key, e, d.pos, nil
}

// Validate checks the ordering and layout invariants of an entry's blocks
func Validate(e *Entry) error {
	if e.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidEntry, e.Position)
	}
	var prevEnd int64
	for i, b := range e.Blocks {
		if b.Width <= 0 {
			return fmt.Errorf("%w: block %d has width %d", ErrInvalidEntry, i, b.Width)
		}
		if b.Offset < prevEnd {
			return fmt.Errorf("%w: block %d overlaps its predecessor", ErrInvalidEntry, i)
		}
		if atom.Compare(b.FirstName, b.LastName) > 0 {
			return fmt.Errorf("%w: block %d first name sorts after last name", ErrInvalidEntry, i)
		}
		if i > 0 && atom.Compare(e.Blocks[i-1].LastName, b.FirstName) >= 0 {
			return fmt.Errorf("%w: block %d is not ordered after block %d", ErrInvalidEntry, i, i-1)
		}
		prevEnd = b.Offset + b.Width
	}
	return nil
}
