// Package footer encodes the fixed-size trailer of an SSTable index file.
package footer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// FooterSize is the encoded size of a Footer
	FooterSize = 68
	// FooterMagic opens every footer
	FooterMagic = uint64(0x5111CE5151ABCE01)
	// CurrentVersion is the newest format this package reads and the one it writes
	CurrentVersion = uint32(1)

	checksumOffset = FooterSize - 8
)

var (
	// ErrCorruptFooter is returned when a footer or the body it describes fails verification
	ErrCorruptFooter = errors.New("corrupt sstable footer")
	// ErrUnsupportedVersion is returned for index files written by a newer format
	ErrUnsupportedVersion = errors.New("unsupported sstable format version")
)

// Footer closes an index file. It locates the row entries and the chunk offset
// table, and records how the data file was compressed.
type Footer struct {
	Magic     uint64
	Version   uint32
	Timestamp int64

	// RowCount is the number of partitions in the table
	RowCount uint32
	// EntriesSize is the length of the row entry section at the start of the file
	EntriesSize uint64
	// DataLength is the logical (uncompressed) size of the data file
	DataLength uint64

	Codec       uint32
	ChunkLength uint32
	ChunkCount  uint32

	// BodyChecksum covers everything in the index file before the footer
	BodyChecksum uint64
	// Checksum covers the encoded fields above
	Checksum uint64
}

// NewFooter returns a current-version footer stamped with the current time.
func NewFooter(rowCount uint32, entriesSize, dataLength uint64, codec, chunkLength, chunkCount uint32,
	bodyChecksum uint64) *Footer {

	return &Footer{
		Magic:        FooterMagic,
		Version:      CurrentVersion,
		Timestamp:    time.Now().UnixNano(),
		RowCount:     rowCount,
		EntriesSize:  entriesSize,
		DataLength:   dataLength,
		Codec:        codec,
		ChunkLength:  chunkLength,
		ChunkCount:   chunkCount,
		BodyChecksum: bodyChecksum,
	}
}

// AppendTo appends the encoded footer to dst and sets f.Checksum.
func (f *Footer) AppendTo(dst []byte) []byte {
	start := len(dst)
	le := binary.LittleEndian
	dst = le.AppendUint64(dst, f.Magic)
	dst = le.AppendUint32(dst, f.Version)
	dst = le.AppendUint64(dst, uint64(f.Timestamp))
	dst = le.AppendUint32(dst, f.RowCount)
	dst = le.AppendUint64(dst, f.EntriesSize)
	dst = le.AppendUint64(dst, f.DataLength)
	dst = le.AppendUint32(dst, f.Codec)
	dst = le.AppendUint32(dst, f.ChunkLength)
	dst = le.AppendUint32(dst, f.ChunkCount)
	dst = le.AppendUint64(dst, f.BodyChecksum)

	f.Checksum = xxhash.Sum64(dst[start:])
	return le.AppendUint64(dst, f.Checksum)
}

// Encode returns the FooterSize-byte encoding of f.
func (f *Footer) Encode() []byte {
	return f.AppendTo(make([]byte, 0, FooterSize))
}

// WriteTo writes the encoded footer to w
func (f *Footer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Encode())
	return int64(n), err
}

// fieldReader consumes little-endian fields from the front of buf
type fieldReader struct {
	buf []byte
}

func (r *fieldReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *fieldReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

// Decode parses and verifies the footer in the last FooterSize bytes of data.
func Decode(data []byte) (*Footer, error) {
	if len(data) < FooterSize {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrCorruptFooter, len(data), FooterSize)
	}
	data = data[len(data)-FooterSize:]

	r := fieldReader{buf: data}
	f := &Footer{
		Magic:        r.u64(),
		Version:      r.u32(),
		Timestamp:    int64(r.u64()),
		RowCount:     r.u32(),
		EntriesSize:  r.u64(),
		DataLength:   r.u64(),
		Codec:        r.u32(),
		ChunkLength:  r.u32(),
		ChunkCount:   r.u32(),
		BodyChecksum: r.u64(),
		Checksum:     r.u64(),
	}

	if f.Magic != FooterMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptFooter, f.Magic)
	}
	if sum := xxhash.Sum64(data[:checksumOffset]); sum != f.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: file has %d, calculated %d", ErrCorruptFooter, f.Checksum, sum)
	}
	if f.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	return f, nil
}

// VerifyBody checks the index body preceding the footer against the
// checksum and entry section size the footer records.
func (f *Footer) VerifyBody(body []byte) error {
	if sum := xxhash.Sum64(body); sum != f.BodyChecksum {
		return fmt.Errorf("%w: index checksum mismatch: footer has %d, calculated %d", ErrCorruptFooter, f.BodyChecksum, sum)
	}
	if f.EntriesSize > uint64(len(body)) {
		return fmt.Errorf("%w: entries size %d exceeds index body %d", ErrCorruptFooter, f.EntriesSize, len(body))
	}
	return nil
}
