package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when a chunk fails its checksum or
	// cannot be decompressed. It matches atom.ErrCorrupt.
	ErrInvalidCompressedData = fmt.Errorf("%w: invalid compressed data", atom.ErrCorrupt)
)

// Codec identifies how data file chunks are compressed
type Codec uint32

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecZstd
)

// String returns the configuration name of the codec
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint32(c))
	}
}

// ParseCodec converts a configuration name into a Codec
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Compressor compresses and decompresses chunks with a single codec
type Compressor struct {
	codec Codec

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	// Mutex to protect encoder/decoder access
	mu sync.Mutex
}

// NewCompressor creates a compressor for codec
func NewCompressor(codec Codec) (*Compressor, error) {
	c := &Compressor{codec: codec}

	switch codec {
	case CodecNone, CodecSnappy:
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
		}
		c.zstdEncoder = enc
		c.zstdDecoder = dec
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	return c, nil
}

// Codec returns the codec in use
func (c *Compressor) Codec() Codec {
	return c.codec
}

// Compress appends the compressed form of data to dst
func (c *Compressor) Compress(dst, data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.codec {
	case CodecSnappy:
		return append(dst, snappy.Encode(nil, data)...)
	case CodecZstd:
		return c.zstdEncoder.EncodeAll(data, dst)
	default:
		return append(dst, data...)
	}
}

// Decompress appends the decompressed form of data to dst
func (c *Compressor) Decompress(dst, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.codec {
	case CodecSnappy:
		result, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return append(dst, result...), nil
	case CodecZstd:
		result, err := c.zstdDecoder.DecodeAll(data, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return result, nil
	default:
		return append(dst, data...), nil
	}
}

// Close releases codec resources
func (c *Compressor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.zstdEncoder != nil {
		c.zstdEncoder.Close()
		c.zstdEncoder = nil
	}
	if c.zstdDecoder != nil {
		c.zstdDecoder.Close()
		c.zstdDecoder = nil
	}
}
