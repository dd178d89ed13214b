package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/footer"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
	"github.com/KevoDB/rowslice/pkg/stats"
)

// FileManager writes a file under a temporary name and renames it into place
// once it is complete
type FileManager struct {
	path    string
	tmpPath string
	file    *os.File
	written int64
}

// NewFileManager creates a new FileManager for the given file path
func NewFileManager(path string) (*FileManager, error) {
	// Create temporary file for writing
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(path)))

	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &FileManager{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
	}, nil
}

// Write writes data to the file at the current position
func (fm *FileManager) Write(data []byte) (int, error) {
	n, err := fm.file.Write(data)
	fm.written += int64(n)
	return n, err
}

// Written returns the number of bytes written so far
func (fm *FileManager) Written() int64 {
	return fm.written
}

// Sync flushes the file to disk
func (fm *FileManager) Sync() error {
	return fm.file.Sync()
}

// Close closes the file
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// FinalizeFile syncs and closes the file and renames it to the final path
func (fm *FileManager) FinalizeFile() error {
	if err := fm.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := fm.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(fm.tmpPath, fm.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Cleanup removes the temporary file if writing is aborted
func (fm *FileManager) Cleanup() error {
	if fm.file != nil {
		fm.Close()
	}
	err := os.Remove(fm.tmpPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Writer writes an SSTable. Rows are written one at a time between BeginRow
// and EndRow, in increasing key order, with atoms in increasing bound order.
type Writer struct {
	opts   Options
	logger log.Logger

	dataFile  *FileManager
	indexFile *FileManager
	chunks    *stream.ChunkWriter
	data      io.Writer

	// dataOffset is the logical offset of the next row in the data file
	dataOffset int64
	indexHash  *xxhash.Digest
	entryBuf   []byte

	row      *rowindex.Builder
	rowKey   []byte
	lastKey  []byte
	rowCount uint32
	finished bool
}

// NewWriter creates the data and index files of table name in dir
func NewWriter(dir, name string, opts Options) (*Writer, error) {
	dataFile, err := NewFileManager(DataPath(dir, name))
	if err != nil {
		return nil, err
	}
	indexFile, err := NewFileManager(IndexPath(dir, name))
	if err != nil {
		dataFile.Cleanup()
		return nil, err
	}

	w := &Writer{
		opts:      opts,
		logger:    opts.logger().WithField("table", name),
		dataFile:  dataFile,
		indexFile: indexFile,
		data:      dataFile,
		indexHash: xxhash.New(),
	}

	if opts.Codec != stream.CodecNone {
		w.chunks, err = stream.NewChunkWriter(dataFile, opts.Codec, opts.ChunkLength)
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("failed to create chunk writer: %w", err)
		}
		w.data = w.chunks
	}

	return w, nil
}

// BeginRow starts the row for key with the given row-level deletion
func (w *Writer) BeginRow(key []byte, deletion atom.DeletionTime) error {
	if w.row != nil {
		return fmt.Errorf("%w: %q", ErrRowInProgress, w.rowKey)
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: empty partition key", ErrOutOfOrder)
	}
	if w.lastKey != nil && bytes.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, key, w.lastKey)
	}

	w.rowKey = append([]byte(nil), key...)
	w.row = rowindex.NewBuilder(w.rowKey, deletion, w.opts.ColumnIndexSize)
	return nil
}

// Add appends an atom to the current row
func (w *Writer) Add(a *atom.Atom) error {
	if w.row == nil {
		return ErrNoRow
	}
	return w.row.Add(a)
}

// AddColumn appends a live column to the current row
func (w *Writer) AddColumn(name, value []byte, timestamp int64) error {
	return w.Add(atom.NewColumn(name, value, timestamp))
}

// AddTombstone appends a deleted column to the current row
func (w *Writer) AddTombstone(name []byte, timestamp int64) error {
	return w.Add(atom.NewTombstone(name, timestamp))
}

// AddRangeTombstone appends a deletion of [start, end] to the current row
func (w *Writer) AddRangeTombstone(start, end []byte, deletedAt int64) error {
	return w.Add(atom.NewRangeTombstone(start, end, deletedAt))
}

// EndRow writes the current row and its index entry
func (w *Writer) EndRow() error {
	if w.row == nil {
		return ErrNoRow
	}

	rowData, entry := w.row.Finish(w.dataOffset)
	n, err := w.data.Write(rowData)
	if err != nil {
		return fmt.Errorf("failed to write row %q: %w", w.rowKey, err)
	}
	if n != len(rowData) {
		return fmt.Errorf("wrote incomplete row: %d of %d bytes", n, len(rowData))
	}
	w.dataOffset += int64(n)

	w.entryBuf = rowindex.AppendEntry(w.entryBuf[:0], w.rowKey, entry)
	if err := w.writeIndex(w.entryBuf); err != nil {
		return fmt.Errorf("failed to write index entry for %q: %w", w.rowKey, err)
	}

	w.lastKey = w.rowKey
	w.rowKey = nil
	w.row = nil
	w.rowCount++
	return nil
}

func (w *Writer) writeIndex(data []byte) error {
	n, err := w.indexFile.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("wrote incomplete index data: %d of %d bytes", n, len(data))
	}
	w.indexHash.Write(data)
	return nil
}

// Finish ends any open row, writes the index footer and moves both files into place
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}
	if w.row != nil {
		if err := w.EndRow(); err != nil {
			return err
		}
	}

	entriesSize := uint64(w.indexFile.Written())

	var chunkLength, chunkCount uint32
	if w.chunks != nil {
		info, err := w.chunks.Close()
		if err != nil {
			return fmt.Errorf("failed to flush compressed data: %w", err)
		}
		chunkLength = info.ChunkLength
		chunkCount = uint32(len(info.Offsets))

		offsets := make([]byte, 0, 8*len(info.Offsets))
		for _, off := range info.Offsets {
			offsets = binary.LittleEndian.AppendUint64(offsets, uint64(off))
		}
		if err := w.writeIndex(offsets); err != nil {
			return fmt.Errorf("failed to write chunk offsets: %w", err)
		}
	}

	ft := footer.NewFooter(
		w.rowCount,
		entriesSize,
		uint64(w.dataOffset),
		uint32(w.opts.Codec),
		chunkLength,
		chunkCount,
		w.indexHash.Sum64(),
	)
	if _, err := ft.WriteTo(w.indexFile); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	// The data file goes first so a visible index always has its data
	if err := w.dataFile.FinalizeFile(); err != nil {
		return err
	}
	if err := w.indexFile.FinalizeFile(); err != nil {
		return err
	}
	w.finished = true
	if w.opts.Stats != nil {
		w.opts.Stats.TrackRows(uint64(w.rowCount))
	}
	w.opts.track(stats.OpWrite)

	w.logger.Info("Wrote sstable with %d rows, %d data bytes (%s)", w.rowCount, w.dataOffset, w.opts.Codec)
	return nil
}

// Abort cancels the SSTable writing process
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	derr := w.dataFile.Cleanup()
	ierr := w.indexFile.Cleanup()
	if derr != nil {
		return derr
	}
	return ierr
}
