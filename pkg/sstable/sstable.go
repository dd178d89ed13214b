// Package sstable writes and opens immutable row tables. A table is a pair of
// files: <name>-Data.db holds the serialized rows in key order, optionally
// chunk-compressed, and <name>-Index.db holds one row index entry per
// partition followed by the chunk offsets and a footer.
package sstable

import (
	"errors"
	"path/filepath"

	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/config"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
	"github.com/KevoDB/rowslice/pkg/sstable/slice"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
	"github.com/KevoDB/rowslice/pkg/stats"
)

const (
	// DataFileSuffix names the file holding serialized rows
	DataFileSuffix = "-Data.db"
	// IndexFileSuffix names the file holding row index entries
	IndexFileSuffix = "-Index.db"
)

var (
	// ErrNotFound indicates a key or column was not found in the SSTable
	ErrNotFound = errors.New("key not found in sstable")
	// ErrCorruption indicates data corruption was detected
	ErrCorruption = errors.New("sstable corruption detected")
	// ErrOutOfOrder is returned when partition keys are not written in increasing order
	ErrOutOfOrder = errors.New("partition keys must be written in strictly increasing order")
	// ErrNoRow is returned when an atom is written outside BeginRow/EndRow
	ErrNoRow = errors.New("no row in progress")
	// ErrRowInProgress is returned when a row is begun before the previous one ended
	ErrRowInProgress = errors.New("row already in progress")
	// ErrReaderClosed is returned by a closed Reader
	ErrReaderClosed = errors.New("sstable reader is closed")
)

// DataPath returns the data file path of table name in dir
func DataPath(dir, name string) string {
	return filepath.Join(dir, name+DataFileSuffix)
}

// IndexPath returns the index file path of table name in dir
func IndexPath(dir, name string) string {
	return filepath.Join(dir, name+IndexFileSuffix)
}

// Options configures table writers and readers
type Options struct {
	// ColumnIndexSize is the number of atom bytes per column index block
	ColumnIndexSize int
	// Codec compresses the data file
	Codec stream.Codec
	// ChunkLength is the logical size of a compressed chunk
	ChunkLength uint32
	// CursorBufferSize is the read-ahead window of cursors opened by a Reader
	CursorBufferSize int
	// BlockBufferHint sizes reversed slice buffers, in atoms
	BlockBufferHint int

	Logger  log.Logger
	Metrics slice.SliceMetrics
	// Stats collects in-process counters when set
	Stats stats.Collector
}

// DefaultOptions returns options with default values
func DefaultOptions() Options {
	return Options{
		ColumnIndexSize:  rowindex.DefaultBlockSize,
		Codec:            stream.CodecNone,
		ChunkLength:      stream.DefaultChunkLength,
		CursorBufferSize: stream.DefaultBufferSize,
		BlockBufferHint:  slice.DefaultBlockBufferHint,
	}
}

// OptionsFromConfig derives table options from a configuration
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	cfg.View(func(c *config.Config) {
		opts.ColumnIndexSize = c.ColumnIndexSize
		opts.ChunkLength = c.ChunkLength
		opts.CursorBufferSize = c.CursorBufferSize
		opts.BlockBufferHint = c.BlockBufferHint
	})
	opts.Codec = cfg.Codec()
	return opts
}

func (o Options) logger() log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.GetDefaultLogger().WithField("component", "sstable")
}
