package footer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func newTestFooter() *Footer {
	return NewFooter(
		1234,   // rowCount
		8000,   // entriesSize
		900000, // dataLength
		2,      // codec
		65536,  // chunkLength
		14,     // chunkCount
		0xABCD, // bodyChecksum
	)
}

func TestFooterEncodeDecode(t *testing.T) {
	f := newTestFooter()

	encoded := f.Encode()

	if len(encoded) != FooterSize {
		t.Errorf("Encoded footer size is %d, expected %d", len(encoded), FooterSize)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Failed to decode footer: %v", err)
	}

	if *decoded != *f {
		t.Errorf("Decoded footer mismatch:\n got %+v\nwant %+v", *decoded, *f)
	}
}

func TestFooterWriteTo(t *testing.T) {
	f := newTestFooter()

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	if err != nil {
		t.Fatalf("Failed to write footer: %v", err)
	}

	if n != int64(FooterSize) {
		t.Errorf("WriteTo wrote %d bytes, expected %d", n, FooterSize)
	}

	decoded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode footer: %v", err)
	}

	if decoded.RowCount != f.RowCount || decoded.ChunkCount != f.ChunkCount {
		t.Errorf("Footer mismatch after write/read")
	}
}

func TestFooterCorruption(t *testing.T) {
	encoded := newTestFooter().Encode()

	// Corrupt the magic number
	corruptedMagic := append([]byte(nil), encoded...)
	binary.LittleEndian.PutUint64(corruptedMagic[0:], 0x1234567812345678)
	if _, err := Decode(corruptedMagic); err == nil {
		t.Errorf("Expected error when decoding footer with corrupt magic, but got none")
	}

	// Corrupt a field covered by the checksum
	corruptedField := append([]byte(nil), encoded...)
	corruptedField[25] ^= 0xFF
	if _, err := Decode(corruptedField); err == nil {
		t.Errorf("Expected error when decoding footer with corrupt field, but got none")
	}

	// Corrupt the checksum
	corruptedChecksum := append([]byte(nil), encoded...)
	binary.LittleEndian.PutUint64(corruptedChecksum[60:], 0xBADBADBADBADBAD)
	if _, err := Decode(corruptedChecksum); !errors.Is(err, ErrCorruptFooter) {
		t.Errorf("Expected ErrCorruptFooter for a corrupt checksum, got %v", err)
	}

	// Truncated data
	if _, err := Decode(encoded[:FooterSize-1]); err == nil {
		t.Errorf("Expected error when decoding truncated footer, but got none")
	}
}

func TestFooterVersionCheck(t *testing.T) {
	f := newTestFooter()
	f.Version = CurrentVersion + 1

	_, err := Decode(f.Encode())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeUsesTrailingBytes(t *testing.T) {
	f := newTestFooter()
	file := f.AppendTo([]byte("index body"))

	decoded, err := Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode footer at end of file: %v", err)
	}
	if *decoded != *f {
		t.Errorf("Decoded footer mismatch:\n got %+v\nwant %+v", *decoded, *f)
	}
}

func TestVerifyBody(t *testing.T) {
	body := []byte("entries and chunk offsets")
	f := NewFooter(1, 7, 0, 0, 0, 0, xxhash.Sum64(body))

	if err := f.VerifyBody(body); err != nil {
		t.Fatalf("Expected body to verify, got %v", err)
	}

	flipped := append([]byte(nil), body...)
	flipped[0] ^= 1
	if err := f.VerifyBody(flipped); !errors.Is(err, ErrCorruptFooter) {
		t.Errorf("Expected ErrCorruptFooter for a modified body, got %v", err)
	}

	f.EntriesSize = uint64(len(body) + 1)
	if err := f.VerifyBody(body); !errors.Is(err, ErrCorruptFooter) {
		t.Errorf("Expected ErrCorruptFooter for oversized entries, got %v", err)
	}
}
