// Package stream provides the byte-stream layer the slice readers pull rows from:
// random-access sources over plain or chunk-compressed data files, and a
// buffered, seekable cursor that decodes atom frames.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned when reading from a closed source or cursor
var ErrClosed = errors.New("stream is closed")

// Source is a random-access view over the logical (uncompressed) bytes of a data file
type Source interface {
	io.ReaderAt
	// Size returns the logical length in bytes
	Size() int64
	// Close releases the underlying handle
	Close() error
}

// FileSource reads directly from an uncompressed file
type FileSource struct {
	path     string
	file     *os.File
	fileSize int64
	mu       sync.RWMutex
}

// OpenFileSource opens path for reading
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FileSource{
		path:     path,
		file:     file,
		fileSize: stat.Size(),
	}, nil
}

// ReadAt reads data from the file at the given offset
func (s *FileSource) ReadAt(data []byte, offset int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file == nil {
		return 0, ErrClosed
	}

	return s.file.ReadAt(data, offset)
}

// Size returns the size of the file
func (s *FileSource) Size() int64 {
	return s.fileSize
}

// Path returns the path the source was opened from
func (s *FileSource) Path() string {
	return s.path
}

// Close closes the file
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	return err
}

// BytesSource serves reads from memory
type BytesSource struct {
	r      *bytes.Reader
	closed bool
}

// NewBytesSource creates a source over data
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{r: bytes.NewReader(data)}
}

// ReadAt reads from the in-memory data
func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.r.ReadAt(p, off)
}

// Size returns the length of the data
func (s *BytesSource) Size() int64 {
	return s.r.Size()
}

// Close marks the source closed
func (s *BytesSource) Close() error {
	s.closed = true
	return nil
}
