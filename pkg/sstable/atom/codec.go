package atom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

const (
	// FrameHeaderSize is the size of the length + checksum prefix of every frame
	FrameHeaderSize = 8

	// MinFrameSize is the encoded size of a tombstone with a one byte name,
	// the smallest frame a row can hold
	MinFrameSize = FrameHeaderSize + 1 + 1 + 1 + 8

	// MaxPayloadSize bounds a single frame payload
	MaxPayloadSize = 64 * 1024 * 1024
)

// ErrCorrupt indicates a frame could not be decoded
var ErrCorrupt = errors.New("corrupt atom framing")

// frameChecksum is the low 32 bits of the payload's xxhash64
func frameChecksum(payload []byte) uint32 {
	return uint32(xxhash.Sum64(payload))
}

// appendFrame wraps payload (already appended to dst at start) with its header
func appendFrame(dst []byte, build func([]byte) []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, FrameHeaderSize)...)
	dst = build(dst)
	payload := dst[start+FrameHeaderSize:]
	binary.LittleEndian.PutUint32(dst[start:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(dst[start+4:], frameChecksum(payload))
	return dst
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// AppendFrame appends the framed encoding of a to dst
func (a *Atom) AppendFrame(dst []byte) []byte {
	return appendFrame(dst, func(b []byte) []byte {
		b = append(b, byte(a.Kind))
		b = appendBytes(b, a.Name)
		switch a.Kind {
		case KindColumn:
			b = binary.LittleEndian.AppendUint64(b, uint64(a.Timestamp))
			b = appendBytes(b, a.Value)
		case KindTombstone:
			b = binary.LittleEndian.AppendUint64(b, uint64(a.Timestamp))
		case KindRangeTombstone:
			b = appendBytes(b, a.End)
			b = binary.LittleEndian.AppendUint64(b, uint64(a.DeletedAt))
		}
		return b
	})
}

// EncodedSize returns the number of bytes AppendFrame will produce
func (a *Atom) EncodedSize() int {
	return len(a.AppendFrame(nil))
}

// AppendFrame appends the framed encoding of the row header to dst
func (h *RowHeader) AppendFrame(dst []byte) []byte {
	return appendFrame(dst, func(b []byte) []byte {
		b = append(b, byte(KindRowHeader))
		b = appendBytes(b, h.Key)
		b = binary.LittleEndian.AppendUint64(b, uint64(h.Deletion.MarkedForDeleteAt))
		return binary.LittleEndian.AppendUint32(b, uint32(h.Deletion.LocalDeletionTime))
	})
}

// AppendRowEnd appends the row terminator frame to dst
func AppendRowEnd(dst []byte) []byte {
	return appendFrame(dst, func(b []byte) []byte {
		return append(b, byte(KindRowEnd))
	})
}

// ReadFrame reads one frame from r, verifying its checksum. The returned payload
// aliases buf when it is large enough. n is the total number of bytes consumed.
func ReadFrame(r io.Reader, buf []byte) (payload []byte, n int, err error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, readErr("frame header", err)
	}

	size := binary.LittleEndian.Uint32(hdr[:4])
	checksum := binary.LittleEndian.Uint32(hdr[4:])
	if size == 0 || size > MaxPayloadSize {
		return nil, FrameHeaderSize, fmt.Errorf("%w: invalid payload length %d", ErrCorrupt, size)
	}

	if cap(buf) >= int(size) {
		payload = buf[:size]
	} else {
		payload = make([]byte, size)
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, FrameHeaderSize, readErr("frame payload", err)
	}

	if computed := frameChecksum(payload); computed != checksum {
		return nil, FrameHeaderSize + int(size), fmt.Errorf("%w: checksum mismatch: expected %d, got %d",
			ErrCorrupt, checksum, computed)
	}

	return payload, FrameHeaderSize + int(size), nil
}

// readErr maps a short read to corruption; a row never ends mid-frame
func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", ErrCorrupt, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

// payloadDecoder consumes fields from a frame payload
type payloadDecoder struct {
	data []byte
	err  error
}

func (d *payloadDecoder) fail(field string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: malformed %s", ErrCorrupt, field)
	}
}

func (d *payloadDecoder) bytes(field string) []byte {
	if d.err != nil {
		return nil
	}
	l, n := binary.Uvarint(d.data)
	if n <= 0 || uint64(len(d.data)-n) < l {
		d.fail(field)
		return nil
	}
	// copy so the atom does not alias the cursor's scratch buffer
	out := append([]byte(nil), d.data[n:n+int(l)]...)
	d.data = d.data[n+int(l):]
	return out
}

func (d *payloadDecoder) uint64(field string) uint64 {
	if d.err != nil {
		return 0
	}
	if len(d.data) < 8 {
		d.fail(field)
		return 0
	}
	v := binary.LittleEndian.Uint64(d.data)
	d.data = d.data[8:]
	return v
}

func (d *payloadDecoder) uint32(field string) uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.data) < 4 {
		d.fail(field)
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data)
	d.data = d.data[4:]
	return v
}

func (d *payloadDecoder) finish() error {
	if d.err == nil && len(d.data) != 0 {
		d.err = fmt.Errorf("%w: %d trailing bytes in frame", ErrCorrupt, len(d.data))
	}
	return d.err
}

// DecodeAtom decodes an atom payload. A nil atom with a nil error is returned
// for the row-end marker.
func DecodeAtom(payload []byte) (*Atom, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorrupt)
	}

	kind := Kind(payload[0])
	d := &payloadDecoder{data: payload[1:]}

	var a *Atom
	switch kind {
	case KindRowEnd:
		return nil, d.finish()
	case KindColumn:
		a = &Atom{Kind: kind, Name: d.bytes("column name")}
		a.Timestamp = int64(d.uint64("column timestamp"))
		a.Value = d.bytes("column value")
	case KindTombstone:
		a = &Atom{Kind: kind, Name: d.bytes("tombstone name")}
		a.Timestamp = int64(d.uint64("tombstone timestamp"))
	case KindRangeTombstone:
		a = &Atom{Kind: kind, Name: d.bytes("range start")}
		a.End = d.bytes("range end")
		a.DeletedAt = int64(d.uint64("range deletion time"))
	default:
		return nil, fmt.Errorf("%w: unexpected kind %s inside row", ErrCorrupt, kind)
	}

	if err := d.finish(); err != nil {
		return nil, err
	}
	return a, nil
}

// DecodeRowHeader decodes a row header payload
func DecodeRowHeader(payload []byte) (*RowHeader, error) {
	if len(payload) == 0 || Kind(payload[0]) != KindRowHeader {
		return nil, fmt.Errorf("%w: expected row header", ErrCorrupt)
	}

	d := &payloadDecoder{data: payload[1:]}
	h := &RowHeader{Key: d.bytes("row key")}
	h.Deletion.MarkedForDeleteAt = int64(d.uint64("row deletion timestamp"))
	h.Deletion.LocalDeletionTime = int32(d.uint32("row local deletion time"))
	if err := d.finish(); err != nil {
		return nil, err
	}
	return h, nil
}
