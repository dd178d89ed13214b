package sstable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/config"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/slice"
	"github.com/KevoDB/rowslice/pkg/sstable/stream"
	"github.com/KevoDB/rowslice/pkg/stats"
)

var codecs = []stream.Codec{stream.CodecNone, stream.CodecSnappy, stream.CodecZstd}

func colName(i int) []byte {
	return []byte(fmt.Sprintf("col%04d", i))
}

func rowKey(i int) []byte {
	return []byte(fmt.Sprintf("key%05d", i))
}

// writeTable writes numRows rows; row i holds i*3 columns so later rows span
// several column index blocks
func writeTable(t *testing.T, dir string, opts Options, numRows int) {
	t.Helper()

	w, err := NewWriter(dir, "test", opts)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	for i := 0; i < numRows; i++ {
		deletion := atom.LiveDeletion
		if i%7 == 0 {
			deletion = atom.DeletionTime{MarkedForDeleteAt: int64(i), LocalDeletionTime: 100}
		}
		if err := w.BeginRow(rowKey(i), deletion); err != nil {
			t.Fatalf("BeginRow %d: %v", i, err)
		}
		for j := 0; j < i*3; j++ {
			if j == 5 {
				if err := w.AddRangeTombstone(colName(j), colName(j+2), 42); err != nil {
					t.Fatalf("AddRangeTombstone: %v", err)
				}
				continue
			}
			if err := w.AddColumn(colName(j), []byte(fmt.Sprintf("value-%d-%d", i, j)), int64(j)); err != nil {
				t.Fatalf("AddColumn: %v", err)
			}
		}
		if err := w.EndRow(); err != nil {
			t.Fatalf("EndRow %d: %v", i, err)
		}
	}

	if err := w.Finish(); err != nil {
		t.Fatalf("Failed to finish: %v", err)
	}
}

func smallBlocks(codec stream.Codec) Options {
	opts := DefaultOptions()
	opts.ColumnIndexSize = 256
	opts.Codec = codec
	opts.ChunkLength = 1024
	return opts
}

func collect(t *testing.T, it *slice.Iterator) []*atom.Atom {
	t.Helper()
	var atoms []*atom.Atom
	for {
		ok, err := it.HasNext()
		if err != nil {
			t.Fatalf("HasNext: %v", err)
		}
		if !ok {
			return atoms
		}
		a, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		atoms = append(atoms, a)
	}
}

func TestWriteAndSlice(t *testing.T) {
	const numRows = 40
	ctx := context.Background()

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			writeTable(t, dir, smallBlocks(codec), numRows)

			r, err := Open(dir, "test", smallBlocks(codec))
			if err != nil {
				t.Fatalf("Failed to open: %v", err)
			}
			defer r.Close()

			if r.RowCount() != numRows {
				t.Fatalf("Expected %d rows, got %d", numRows, r.RowCount())
			}
			if r.Codec() != codec {
				t.Errorf("Expected codec %s, got %s", codec, r.Codec())
			}
			for i, k := range r.Keys() {
				if string(k) != string(rowKey(i)) {
					t.Fatalf("Key %d: expected %s, got %s", i, rowKey(i), k)
				}
			}

			entry, err := r.ResolveRow(rowKey(numRows - 1))
			if err != nil || entry == nil {
				t.Fatalf("ResolveRow: %v %v", entry, err)
			}
			if !entry.IsIndexed() {
				t.Errorf("Expected the widest row to carry column index blocks")
			}

			for i := 0; i < numRows; i++ {
				it, err := r.Slice(ctx, rowKey(i), slice.Slice{})
				if err != nil {
					t.Fatalf("Slice row %d: %v", i, err)
				}
				atoms := collect(t, it)
				if err := it.Close(); err != nil {
					t.Fatalf("Close: %v", err)
				}

				if len(atoms) != i*3 {
					t.Fatalf("Row %d: expected %d atoms, got %d", i, i*3, len(atoms))
				}
				for j, a := range atoms {
					if string(a.Name) != string(colName(j)) {
						t.Fatalf("Row %d atom %d: expected %s, got %s", i, j, colName(j), a.Name)
					}
					if j == 5 && a.Kind != atom.KindRangeTombstone {
						t.Errorf("Row %d: expected range tombstone at col0005, got %s", i, a.Kind)
					}
				}

				if hdr := it.RowHeader(); hdr == nil || (i%7 == 0) == hdr.Deletion.IsLive() {
					t.Errorf("Row %d: unexpected row header %+v", i, hdr)
				}
			}

			// bounded and reversed slice over an indexed row
			it, err := r.Slice(ctx, rowKey(numRows-1), slice.Slice{Start: colName(10), Finish: colName(90), Reversed: true})
			if err != nil {
				t.Fatalf("Slice: %v", err)
			}
			atoms := collect(t, it)
			it.Close()
			if len(atoms) != 81 {
				t.Fatalf("Expected 81 atoms, got %d", len(atoms))
			}
			if string(atoms[0].Name) != "col0090" || string(atoms[80].Name) != "col0010" {
				t.Errorf("Unexpected reversed range %s..%s", atoms[0].Name, atoms[80].Name)
			}
		})
	}
}

func TestSliceMissingRow(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, DefaultOptions(), 5)

	r, err := Open(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer r.Close()

	entry, err := r.ResolveRow([]byte("nope"))
	if err != nil || entry != nil {
		t.Fatalf("Expected no entry, got %v %v", entry, err)
	}

	it, err := r.Slice(context.Background(), []byte("nope"), slice.Slice{Reversed: true})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if ok, err := it.HasNext(); ok || err != nil {
		t.Errorf("Expected empty iterator, got %v %v", ok, err)
	}
	if it.RowHeader() != nil {
		t.Errorf("Expected no row header")
	}
	if err := it.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, smallBlocks(stream.CodecSnappy), 20)

	r, err := Open(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer r.Close()

	a, err := r.Get(context.Background(), rowKey(19), colName(33))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(a.Value) != "value-19-33" {
		t.Errorf("Expected value-19-33, got %s", a.Value)
	}

	if _, err := r.Get(context.Background(), rowKey(19), []byte("zzz")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := r.Get(context.Background(), []byte("missing"), colName(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// An empty column would otherwise become an unbounded slice of the whole row
	for _, column := range [][]byte{nil, {}} {
		if a, err := r.Get(context.Background(), rowKey(19), column); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for column %q, got atom %v err %v", column, a, err)
		}
	}
}

// closeFailIterator yields atoms and then fails to close
type closeFailIterator struct {
	atoms    []*atom.Atom
	closeErr error
	closed   int
}

func (c *closeFailIterator) Key() []byte                { return []byte("k") }
func (c *closeFailIterator) RowHeader() *atom.RowHeader { return nil }
func (c *closeFailIterator) HasNext() (bool, error)     { return len(c.atoms) > 0, nil }
func (c *closeFailIterator) Remove() error              { return iterator.ErrUnsupportedOperation }

func (c *closeFailIterator) Next() (*atom.Atom, error) {
	if len(c.atoms) == 0 {
		return nil, iterator.ErrExhausted
	}
	a := c.atoms[0]
	c.atoms = c.atoms[1:]
	return a, nil
}

func (c *closeFailIterator) Close() error {
	c.closed++
	return c.closeErr
}

func TestGetReportsCloseFailure(t *testing.T) {
	r := &Reader{}
	diskErr := errors.New("disk on fire")

	it := &closeFailIterator{atoms: []*atom.Atom{atom.NewColumn(colName(1), []byte("v"), 1)}, closeErr: diskErr}
	a, err := r.first(it)
	if !errors.Is(err, diskErr) {
		t.Errorf("Expected close failure, got %v", err)
	}
	if a != nil {
		t.Errorf("Expected no atom alongside a close failure, got %v", a)
	}
	if it.closed != 1 {
		t.Errorf("Expected one Close call, got %d", it.closed)
	}

	// A read result takes precedence over the close failure
	it = &closeFailIterator{closeErr: diskErr}
	if _, err := r.first(it); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	it = &closeFailIterator{atoms: []*atom.Atom{atom.NewColumn(colName(2), []byte("v"), 1)}}
	a, err = r.first(it)
	if err != nil || string(a.Name) != string(colName(2)) {
		t.Errorf("Expected %s, got %v (%v)", colName(2), a, err)
	}
}

func TestSharedCursor(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, smallBlocks(stream.CodecZstd), 20)

	r, err := Open(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer r.Close()

	cursor, err := r.OpenCursor(0)
	if err != nil {
		t.Fatalf("OpenCursor: %v", err)
	}
	defer cursor.Close()

	for i := 19; i >= 0; i-- {
		it, err := r.SliceWithCursor(context.Background(), cursor, rowKey(i), slice.Slice{Start: colName(1)})
		if err != nil {
			t.Fatalf("Slice row %d: %v", i, err)
		}
		atoms := collect(t, it)
		if err := it.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		want := i * 3
		if want > 0 {
			want--
		}
		if len(atoms) != want {
			t.Fatalf("Row %d: expected %d atoms, got %d", i, want, len(atoms))
		}
		if cursor.Closed() {
			t.Fatalf("Shared cursor closed by slice of row %d", i)
		}
	}
}

func TestWriterOrdering(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Abort()

	if err := w.AddColumn([]byte("a"), nil, 1); !errors.Is(err, ErrNoRow) {
		t.Errorf("Expected ErrNoRow, got %v", err)
	}
	if err := w.EndRow(); !errors.Is(err, ErrNoRow) {
		t.Errorf("Expected ErrNoRow, got %v", err)
	}

	if err := w.BeginRow([]byte("m"), atom.LiveDeletion); err != nil {
		t.Fatalf("BeginRow: %v", err)
	}
	if err := w.BeginRow([]byte("n"), atom.LiveDeletion); !errors.Is(err, ErrRowInProgress) {
		t.Errorf("Expected ErrRowInProgress, got %v", err)
	}
	if err := w.AddColumn([]byte("b"), nil, 1); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := w.AddColumn([]byte("a"), nil, 1); err == nil {
		t.Error("Expected error for out of order column")
	}
	if err := w.EndRow(); err != nil {
		t.Fatalf("EndRow: %v", err)
	}

	for _, key := range []string{"m", "a", ""} {
		if err := w.BeginRow([]byte(key), atom.LiveDeletion); !errors.Is(err, ErrOutOfOrder) {
			t.Errorf("Key %q: expected ErrOutOfOrder, got %v", key, err)
		}
	}
}

func TestWriterAbort(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test", smallBlocks(stream.CodecSnappy))
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := w.BeginRow([]byte("k"), atom.LiveDeletion); err != nil {
		t.Fatalf("BeginRow: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no files after abort, found %d", len(entries))
	}
	if _, err := Open(dir, "test", DefaultOptions()); err == nil {
		t.Error("Expected opening an aborted table to fail")
	}
}

func TestEmptyTable(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := Open(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if r.RowCount() != 0 {
		t.Errorf("Expected no rows, got %d", r.RowCount())
	}
}

func flipByte(t *testing.T, path string, offset int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[offset] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestOpenDetectsIndexCorruption(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, DefaultOptions(), 10)
	flipByte(t, IndexPath(dir, "test"), 3)

	if _, err := Open(dir, "test", DefaultOptions()); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption, got %v", err)
	}
}

func TestOpenDetectsTruncatedData(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, DefaultOptions(), 10)

	info, err := os.Stat(DataPath(dir, "test"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(DataPath(dir, "test"), info.Size()-1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	if _, err := Open(dir, "test", DefaultOptions()); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption, got %v", err)
	}
}

func TestSliceDetectsDataCorruption(t *testing.T) {
	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			writeTable(t, dir, smallBlocks(codec), 10)

			r, err := Open(dir, "test", DefaultOptions())
			if err != nil {
				t.Fatalf("Failed to open: %v", err)
			}
			entry, _ := r.ResolveRow(rowKey(5))

			// inside the row header checksum, or the compressed chunk holding it
			offset := entry.Position + 5
			if r.chunks != nil {
				offset = r.chunks.Offsets[entry.Position/int64(r.chunks.ChunkLength)] + 1
			}
			flipByte(t, DataPath(dir, "test"), offset)

			it, err := r.Slice(context.Background(), rowKey(5), slice.Slice{})
			if err == nil {
				for err == nil {
					var ok bool
					ok, err = it.HasNext()
					if !ok && err == nil {
						t.Fatal("Expected corruption to be reported")
					}
					if err == nil {
						_, err = it.Next()
					}
				}
				it.Close()
			}

			var corrupt *slice.CorruptDataError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Expected CorruptDataError, got %v", err)
			}
			if !errors.Is(err, slice.ErrCorruptData) {
				t.Errorf("Expected error to match ErrCorruptData")
			}
		})
	}
}

func TestReaderClosed(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, DefaultOptions(), 3)

	r, err := Open(dir, "test", DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Second close: %v", err)
	}

	if _, err := r.ResolveRow(rowKey(1)); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("Expected ErrReaderClosed, got %v", err)
	}
	if _, err := r.OpenCursor(0); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("Expected ErrReaderClosed, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig(t.TempDir())
	cfg.Update(func(c *config.Config) {
		c.ColumnIndexSize = 512
		c.Compression = "snappy"
		c.ChunkLength = 4096
		c.BlockBufferHint = 32
	})

	opts := OptionsFromConfig(cfg)
	if opts.ColumnIndexSize != 512 || opts.Codec != stream.CodecSnappy || opts.ChunkLength != 4096 || opts.BlockBufferHint != 32 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}

func TestStatsCollected(t *testing.T) {
	dir := t.TempDir()
	collector := stats.NewAtomicCollector()

	opts := smallBlocks(stream.CodecNone)
	opts.Stats = collector
	writeTable(t, dir, opts, 10)

	r, err := Open(dir, "test", opts)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	it, err := r.Slice(ctx, rowKey(9), slice.Slice{})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if got := len(collect(t, it)); got != 27 {
		t.Fatalf("Expected 27 atoms, got %d", got)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := r.Get(ctx, rowKey(3), colName(1)); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get(ctx, rowKey(3), []byte("zzz")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	got := collector.GetStats()
	expected := map[string]uint64{
		"write_ops":    1,
		"rows_written": 10,
		"open_ops":     1,
		"slice_ops":    3,
		"get_ops":      2,
		"cursor_ops":   3,
		"atoms_read":   28,
	}
	for key, want := range expected {
		if v, ok := got[key].(uint64); !ok || v != want {
			t.Errorf("Expected %s = %d, got %v", key, want, got[key])
		}
	}
	if errs := got["errors"].(map[string]uint64); errs[stats.ErrTypeNotFound] != 1 {
		t.Errorf("Expected one not_found error, got %v", errs)
	}
}
