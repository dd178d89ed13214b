package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultChunkLength is the logical size of one compressed chunk
	DefaultChunkLength = 64 * 1024
	// chunkTrailerSize is the checksum stored after every compressed chunk
	chunkTrailerSize = 4
)

// ChunkInfo describes how a data file was split into compressed chunks
type ChunkInfo struct {
	Codec       Codec
	ChunkLength uint32
	// DataLength is the logical (uncompressed) length of the file
	DataLength int64
	// Offsets holds the physical start of each chunk
	Offsets []int64
}

// ChunkWriter buffers logical bytes and writes them as checksummed compressed chunks
type ChunkWriter struct {
	w          io.Writer
	compressor *Compressor
	info       ChunkInfo
	pending    []byte
	scratch    []byte
	physical   int64
}

// NewChunkWriter creates a writer that compresses into w
func NewChunkWriter(w io.Writer, codec Codec, chunkLength uint32) (*ChunkWriter, error) {
	if chunkLength == 0 {
		chunkLength = DefaultChunkLength
	}
	compressor, err := NewCompressor(codec)
	if err != nil {
		return nil, err
	}

	return &ChunkWriter{
		w:          w,
		compressor: compressor,
		info:       ChunkInfo{Codec: codec, ChunkLength: chunkLength},
		pending:    make([]byte, 0, chunkLength),
	}, nil
}

// Write buffers p, flushing every full chunk
func (cw *ChunkWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		room := int(cw.info.ChunkLength) - len(cw.pending)
		n := len(p)
		if n > room {
			n = room
		}
		cw.pending = append(cw.pending, p[:n]...)
		p = p[n:]
		written += n

		if len(cw.pending) == int(cw.info.ChunkLength) {
			if err := cw.flushChunk(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (cw *ChunkWriter) flushChunk() error {
	if len(cw.pending) == 0 {
		return nil
	}

	cw.scratch = cw.compressor.Compress(cw.scratch[:0], cw.pending)
	cw.scratch = binary.LittleEndian.AppendUint32(cw.scratch, uint32(xxhash.Sum64(cw.scratch)))

	n, err := cw.w.Write(cw.scratch)
	if err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if n != len(cw.scratch) {
		return fmt.Errorf("wrote incomplete chunk: %d of %d bytes", n, len(cw.scratch))
	}

	cw.info.Offsets = append(cw.info.Offsets, cw.physical)
	cw.info.DataLength += int64(len(cw.pending))
	cw.physical += int64(n)
	cw.pending = cw.pending[:0]
	return nil
}

// Close flushes the final partial chunk and returns the chunk layout
func (cw *ChunkWriter) Close() (ChunkInfo, error) {
	defer cw.compressor.Close()

	if err := cw.flushChunk(); err != nil {
		return ChunkInfo{}, err
	}
	return cw.info, nil
}

// CompressedSource exposes the logical bytes of a chunk-compressed file. It
// caches the last decompressed chunk and must not be shared between cursors.
type CompressedSource struct {
	raw        Source
	info       ChunkInfo
	compressor *Compressor

	cachedIdx int
	cached    []byte
	compBuf   []byte
}

// NewCompressedSource wraps raw, which holds the physical chunks described by info
func NewCompressedSource(raw Source, info ChunkInfo) (*CompressedSource, error) {
	if info.ChunkLength == 0 {
		return nil, fmt.Errorf("invalid chunk length 0")
	}
	compressor, err := NewCompressor(info.Codec)
	if err != nil {
		return nil, err
	}

	return &CompressedSource{
		raw:        raw,
		info:       info,
		compressor: compressor,
		cachedIdx:  -1,
	}, nil
}

// Size returns the logical length of the file
func (s *CompressedSource) Size() int64 {
	return s.info.DataLength
}

// ReadAt reads logical bytes starting at off
func (s *CompressedSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	n := 0
	for n < len(p) {
		if off >= s.info.DataLength {
			return n, io.EOF
		}

		idx := int(off / int64(s.info.ChunkLength))
		if err := s.loadChunk(idx); err != nil {
			return n, err
		}

		within := int(off - int64(idx)*int64(s.info.ChunkLength))
		if within >= len(s.cached) {
			return n, fmt.Errorf("%w: chunk %d shorter than expected", ErrInvalidCompressedData, idx)
		}
		copied := copy(p[n:], s.cached[within:])
		n += copied
		off += int64(copied)
	}
	return n, nil
}

func (s *CompressedSource) loadChunk(idx int) error {
	if idx == s.cachedIdx {
		return nil
	}
	if idx >= len(s.info.Offsets) {
		return fmt.Errorf("%w: chunk %d out of range", ErrInvalidCompressedData, idx)
	}

	start := s.info.Offsets[idx]
	end := s.raw.Size()
	if idx+1 < len(s.info.Offsets) {
		end = s.info.Offsets[idx+1]
	}
	length := int(end - start)
	if length <= chunkTrailerSize {
		return fmt.Errorf("%w: chunk %d has invalid length %d", ErrInvalidCompressedData, idx, length)
	}

	if cap(s.compBuf) < length {
		s.compBuf = make([]byte, length)
	}
	buf := s.compBuf[:length]
	read, err := s.raw.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read chunk %d: %w", idx, err)
	}
	if read < length {
		return fmt.Errorf("%w: chunk %d truncated: %d of %d bytes", ErrInvalidCompressedData, idx, read, length)
	}

	body := buf[:length-chunkTrailerSize]
	stored := binary.LittleEndian.Uint32(buf[length-chunkTrailerSize:])
	if computed := uint32(xxhash.Sum64(body)); computed != stored {
		return fmt.Errorf("%w: chunk %d checksum mismatch", ErrInvalidCompressedData, idx)
	}

	decoded, err := s.compressor.Decompress(s.cached[:0], body)
	if err != nil {
		s.cachedIdx = -1
		return fmt.Errorf("chunk %d: %w", idx, err)
	}
	s.cached = decoded
	s.cachedIdx = idx
	return nil
}

// Close closes the underlying physical source
func (s *CompressedSource) Close() error {
	s.compressor.Close()
	return s.raw.Close()
}
