package sstable

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/footer"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
	"github.com/KevoDB/rowslice/pkg/sstable/slice"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
	"github.com/KevoDB/rowslice/pkg/stats"
)

// Reader resolves partition keys to row index entries and opens cursors over
// the data file. Its index is immutable once opened, so a Reader may be shared
// between goroutines; every cursor it opens has its own file handle.
type Reader struct {
	name     string
	dataPath string
	opts     Options
	logger   log.Logger

	footer  *footer.Footer
	keys    [][]byte
	entries []*rowindex.Entry
	chunks  *stream.ChunkInfo

	closed atomic.Bool
}

// Open loads the index of table name in dir
func Open(dir, name string, opts Options) (*Reader, error) {
	indexPath := IndexPath(dir, name)
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	r := &Reader{
		name:     name,
		dataPath: DataPath(dir, name),
		opts:     opts,
		logger:   opts.logger().WithField("table", name),
	}

	if err := r.loadIndex(raw); err != nil {
		return nil, err
	}
	if err := r.checkDataFile(); err != nil {
		return nil, err
	}

	opts.track(stats.OpOpen)
	r.logger.Debug("Opened sstable with %d rows (%s)", len(r.keys), stream.Codec(r.footer.Codec))
	return r, nil
}

func (r *Reader) loadIndex(raw []byte) error {
	if len(raw) < footer.FooterSize {
		return fmt.Errorf("%w: index file too small: %d bytes", ErrCorruption, len(raw))
	}

	body := raw[:len(raw)-footer.FooterSize]
	ft, err := footer.Decode(raw[len(body):])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if err := ft.VerifyBody(body); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	r.footer = ft

	entries := body[:ft.EntriesSize]
	r.keys = make([][]byte, 0, ft.RowCount)
	r.entries = make([]*rowindex.Entry, 0, ft.RowCount)
	for len(entries) > 0 {
		key, e, n, err := rowindex.DecodeEntry(entries)
		if err != nil {
			return fmt.Errorf("%w: row %d: %v", ErrCorruption, len(r.keys), err)
		}
		if len(r.keys) > 0 && bytes.Compare(key, r.keys[len(r.keys)-1]) <= 0 {
			return fmt.Errorf("%w: index keys out of order at %q", ErrCorruption, key)
		}
		if uint64(e.Position) >= ft.DataLength {
			return fmt.Errorf("%w: row %q at %d is past the data length %d", ErrCorruption, key, e.Position, ft.DataLength)
		}
		r.keys = append(r.keys, key)
		r.entries = append(r.entries, e)
		entries = entries[n:]
	}
	if uint32(len(r.keys)) != ft.RowCount {
		return fmt.Errorf("%w: footer counts %d rows, index holds %d", ErrCorruption, ft.RowCount, len(r.keys))
	}

	codec := stream.Codec(ft.Codec)
	offsets := body[ft.EntriesSize:]
	if codec == stream.CodecNone {
		if len(offsets) != 0 {
			return fmt.Errorf("%w: %d unexpected bytes after index entries", ErrCorruption, len(offsets))
		}
		return nil
	}

	if uint64(len(offsets)) != 8*uint64(ft.ChunkCount) {
		return fmt.Errorf("%w: expected %d chunk offsets, found %d bytes", ErrCorruption, ft.ChunkCount, len(offsets))
	}
	info := &stream.ChunkInfo{
		Codec:       codec,
		ChunkLength: ft.ChunkLength,
		DataLength:  int64(ft.DataLength),
		Offsets:     make([]int64, ft.ChunkCount),
	}
	for i := range info.Offsets {
		info.Offsets[i] = int64(binary.LittleEndian.Uint64(offsets[8*i:]))
	}
	r.chunks = info
	return nil
}

func (r *Reader) checkDataFile() error {
	stat, err := os.Stat(r.dataPath)
	if err != nil {
		return fmt.Errorf("failed to stat data file: %w", err)
	}
	if r.chunks == nil && uint64(stat.Size()) != r.footer.DataLength {
		return fmt.Errorf("%w: data file is %d bytes, index expects %d", ErrCorruption, stat.Size(), r.footer.DataLength)
	}
	return nil
}

// ResolveRow returns the row index entry for key, or nil if the table does
// not hold the partition
func (r *Reader) ResolveRow(key []byte) (*rowindex.Entry, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	i := sort.Search(len(r.keys), func(i int) bool {
		return bytes.Compare(r.keys[i], key) >= 0
	})
	if i < len(r.keys) && bytes.Equal(r.keys[i], key) {
		return r.entries[i], nil
	}
	return nil, nil
}

// OpenCursor opens a new cursor over the data file positioned at offset. The
// caller owns the cursor and must close it.
func (r *Reader) OpenCursor(offset int64) (*stream.Cursor, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}

	fs, err := stream.OpenFileSource(r.dataPath)
	if err != nil {
		return nil, err
	}

	var src stream.Source = fs
	if r.chunks != nil {
		src, err = stream.NewCompressedSource(fs, *r.chunks)
		if err != nil {
			fs.Close()
			return nil, err
		}
	}

	r.opts.track(stats.OpCursor)
	c := stream.NewCursor(src, r.opts.CursorBufferSize)
	if err := c.Seek(offset); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (r *Reader) sliceOptions(opts []slice.Option) []slice.Option {
	base := []slice.Option{
		slice.WithLogger(r.logger.WithField("component", "slice")),
		slice.WithBlockBufferHint(r.opts.BlockBufferHint),
	}
	if r.opts.Metrics != nil || r.opts.Stats != nil {
		base = append(base, slice.WithMetrics(newTrackedMetrics(r.opts.Metrics, r.opts.Stats)))
	}
	return append(base, opts...)
}

// Slice resolves key and returns an iterator over the atoms of its row that
// fall in s. The iterator opens and owns its cursor. A missing row yields an
// empty iterator.
func (r *Reader) Slice(ctx context.Context, key []byte, s slice.Slice, opts ...slice.Option) (*slice.Iterator, error) {
	return r.SliceWithCursor(ctx, nil, key, s, opts...)
}

// SliceWithCursor is Slice reading through a caller-owned cursor, which stays
// open after the iterator is closed. A nil cursor behaves like Slice.
func (r *Reader) SliceWithCursor(ctx context.Context, cursor slice.Cursor, key []byte, s slice.Slice, opts ...slice.Option) (*slice.Iterator, error) {
	entry, err := r.ResolveRow(key)
	if err != nil {
		return nil, err
	}
	return slice.NewIterator(ctx, r, key, entry, cursor, s, r.sliceOptions(opts)...)
}

// Get returns the atom named column in key's row. Columns always have a
// name, so an empty column is never found.
func (r *Reader) Get(ctx context.Context, key, column []byte) (*atom.Atom, error) {
	if r.opts.Stats != nil {
		start := time.Now()
		defer func() {
			r.opts.Stats.TrackOperationWithLatency(stats.OpGet, time.Since(start))
		}()
	}

	if len(column) == 0 {
		r.notFound()
		return nil, ErrNotFound
	}

	it, err := r.Slice(ctx, key, slice.Slice{Start: column, Finish: column})
	if err != nil {
		return nil, err
	}
	return r.first(it)
}

// first returns the first atom of it and closes it. A close failure is
// returned only when reading succeeded.
func (r *Reader) first(it iterator.AtomIterator) (a *atom.Atom, err error) {
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			a, err = nil, cerr
		}
	}()

	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		r.notFound()
		return nil, ErrNotFound
	}
	return it.Next()
}

func (r *Reader) notFound() {
	if r.opts.Stats != nil {
		r.opts.Stats.TrackError(stats.ErrTypeNotFound)
	}
}

// Keys returns the partition keys in table order. The slice must not be modified.
func (r *Reader) Keys() [][]byte {
	return r.keys
}

// RowCount returns the number of partitions in the table
func (r *Reader) RowCount() int {
	return len(r.keys)
}

// Codec returns the data file compression codec
func (r *Reader) Codec() stream.Codec {
	return stream.Codec(r.footer.Codec)
}

// Close marks the reader closed. Cursors and iterators opened earlier stay usable
// until they are closed themselves.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.logger.Debug("Closed sstable")
	return nil
}
