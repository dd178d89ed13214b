// Package slice reads a bounded, optionally reversed, run of atoms out of one
// row of an SSTable.
//
// NewIterator picks one of two readers for the lifetime of the iterator. The
// forward reader streams the row from its first atom and serves unbounded-start
// ascending slices. The indexed reader uses the row's column index blocks to
// seek close to the requested range and serves everything else, including all
// reversed slices.
package slice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/common/log"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
	"github.com/KevoDB/rowslice/pkg/sstable/rowindex"
)

// Slice selects the atoms of a row with Start <= bound <= Finish. An empty
// bound leaves that side open.
type Slice struct {
	Start    []byte
	Finish   []byte
	Reversed bool
}

// String returns a short description of the slice
func (s Slice) String() string {
	dir := "asc"
	if s.Reversed {
		dir = "desc"
	}
	return fmt.Sprintf("[%q..%q] %s", s.Start, s.Finish, dir)
}

// atomSource produces the atoms of one strategy. next returns (nil, nil) once
// the slice is exhausted.
type atomSource interface {
	next() (*atom.Atom, error)
	position() int64
	blocksRead() int64
}

var _ iterator.AtomIterator = (*Iterator)(nil)

// Iterator is a one-shot iterator over the atoms of a single row slice. It is
// not safe for concurrent use.
type Iterator struct {
	ctx      context.Context
	key      []byte
	slice    Slice
	strategy Strategy
	opts     *Options

	span   trace.Span
	handle cursorHandle
	header *atom.RowHeader
	src    atomSource

	lookahead *atom.Atom
	done      bool
	err       error
	closed    bool

	yielded int64
	started time.Time
}

// NewIterator creates an iterator over the atoms of key's row that fall in s.
//
// A nil entry means the row is not in the table and yields an empty iterator.
// When cursor is nil the iterator opens its own through opener and closes it on
// Close; a supplied cursor is only positioned and is left open.
func NewIterator(ctx context.Context, opener CursorOpener, key []byte, entry *rowindex.Entry, cursor Cursor, s Slice, opts ...Option) (*Iterator, error) {
	it := &Iterator{
		ctx:     ctx,
		key:     key,
		slice:   s,
		opts:    newOptions(opts),
		started: time.Now(),
	}

	if entry == nil {
		it.done = true
		return it, nil
	}

	it.strategy = SelectStrategy(s.Start, s.Reversed)
	if it.opts.forced != StrategyNone {
		it.strategy = it.opts.forced
	}
	it.opts.Metrics.RecordStrategy(ctx, it.strategy, s.Reversed)
	it.ctx, it.span = it.opts.Metrics.StartSliceSpan(ctx, key, it.strategy, s.Reversed)

	acquire := func(offset int64) error {
		h, err := acquireCursor(opener, cursor, offset)
		if err != nil {
			return err
		}
		it.handle = h
		return nil
	}

	var err error
	switch it.strategy {
	case StrategyForward:
		it.src, it.header, err = newForwardReader(&it.handle, acquire, key, entry, s)
	default:
		it.src, it.header, err = newIndexedReader(&it.handle, acquire, key, entry, s, it.opts.BlockBufferHint)
	}
	if err != nil {
		err = classify(key, entry.Position, err)
		it.reportCorruption(err)
		if cerr := it.handle.release(); cerr != nil {
			it.opts.Logger.Warn("Failed to release cursor after construction error: %v", cerr)
		}
		it.endSpan(err)
		return nil, err
	}

	if it.opts.Logger.GetLevel() <= log.LevelDebug {
		it.opts.Logger.WithFields(map[string]interface{}{
			"key":      string(key),
			"strategy": it.strategy.String(),
			"cursor":   it.handle.ownership.String(),
		}).Debug("Opened slice %s", s)
	}

	return it, nil
}

// Key returns the row key. It is available even after the iterator is drained.
func (it *Iterator) Key() []byte {
	return it.key
}

// RowHeader returns the row key and row-level deletion, or nil if the row is
// absent
func (it *Iterator) RowHeader() *atom.RowHeader {
	return it.header
}

// Strategy returns the reader serving this iterator
func (it *Iterator) Strategy() Strategy {
	return it.strategy
}

// HasNext reports whether another atom remains. It decodes at most one atom
// ahead and caches it for Next.
func (it *Iterator) HasNext() (bool, error) {
	if it.closed {
		return false, nil
	}
	if it.err != nil {
		return false, it.err
	}
	if it.lookahead != nil {
		return true, nil
	}
	if it.done {
		return false, nil
	}

	a, err := it.src.next()
	if err != nil {
		it.err = classify(it.key, it.src.position(), err)
		it.reportCorruption(it.err)
		return false, it.err
	}
	if a == nil {
		it.done = true
		return false, nil
	}
	it.lookahead = a
	return true, nil
}

// Next returns the next atom, or ErrExhausted if none remains
func (it *Iterator) Next() (*atom.Atom, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrExhausted
	}

	a := it.lookahead
	it.lookahead = nil
	it.yielded++
	return a, nil
}

// Remove is not supported
func (it *Iterator) Remove() error {
	return ErrUnsupportedOperation
}

// Close releases the cursor if the iterator opened it. The iterator counts as
// closed even when releasing fails, and closing again is a no-op.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.lookahead = nil

	if it.src != nil {
		it.opts.Metrics.RecordSliceComplete(it.ctx, it.strategy, it.yielded, it.src.blocksRead(), time.Since(it.started))
	}

	if err := it.handle.release(); err != nil {
		it.opts.Metrics.RecordCloseFailure(it.ctx)
		cerr := &CloseError{Key: it.key, Err: err}
		it.endSpan(cerr)
		return cerr
	}
	it.endSpan(it.err)
	return nil
}

// endSpan finishes the slice span, marking it failed when err is set
func (it *Iterator) endSpan(err error) {
	if it.span == nil {
		return
	}
	it.span.SetAttributes(attribute.Int64("slice.atoms", it.yielded))
	if it.src != nil {
		it.span.SetAttributes(attribute.Int64("slice.blocks", it.src.blocksRead()))
	}
	if err != nil {
		it.span.RecordError(err)
		it.span.SetStatus(codes.Error, err.Error())
	}
	it.span.End()
	it.span = nil
}

func (it *Iterator) reportCorruption(err error) {
	var corrupt *CorruptDataError
	if !errors.As(err, &corrupt) {
		return
	}
	it.opts.Metrics.RecordCorruption(it.ctx, it.strategy)
	it.opts.Logger.WithFields(map[string]interface{}{
		"key":      string(corrupt.Key),
		"position": corrupt.Position,
		"strategy": it.strategy.String(),
	}).Error("Corrupt row data: %v", corrupt.Err)
}

// readHeader decodes the row header at the cursor and checks it belongs to key.
// It returns the offset of the first atom.
func readHeader(h *cursorHandle, key []byte) (*atom.RowHeader, int64, error) {
	start := h.cursor.Position()
	hdr, n, err := h.cursor.ReadRowHeader()
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(hdr.Key, key) {
		return nil, 0, fmt.Errorf("%w: row header key %q does not match %q", atom.ErrCorrupt, hdr.Key, key)
	}
	return hdr, start + int64(n), nil
}

// checkOrder rejects an atom that does not sort after its predecessor
func checkOrder(prev []byte, a *atom.Atom, pos int64) error {
	if prev != nil && atom.Compare(a.Bound(), prev) <= 0 {
		return fmt.Errorf("%w: atom %q at %d does not sort after %q", atom.ErrCorrupt, a.Bound(), pos, prev)
	}
	return nil
}
