// Package filtered provides iterators that drop atoms based on different criteria
package filtered

import (
	"bytes"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

// AtomFilterFunc reports whether an atom should be kept
type AtomFilterFunc func(a *atom.Atom) bool

// FilteredIterator wraps an atom iterator and applies a filter
type FilteredIterator struct {
	iter    iterator.AtomIterator
	filter  AtomFilterFunc
	pending *atom.Atom
}

// NewFilteredIterator creates a new iterator with an atom filter
func NewFilteredIterator(iter iterator.AtomIterator, filter AtomFilterFunc) *FilteredIterator {
	return &FilteredIterator{
		iter:   iter,
		filter: filter,
	}
}

// Key returns the partition key of the wrapped iterator
func (fi *FilteredIterator) Key() []byte {
	return fi.iter.Key()
}

// RowHeader returns the row header of the wrapped iterator
func (fi *FilteredIterator) RowHeader() *atom.RowHeader {
	return fi.iter.RowHeader()
}

// HasNext advances the wrapped iterator to the next atom that passes the
// filter and holds it for Next
func (fi *FilteredIterator) HasNext() (bool, error) {
	if fi.pending != nil {
		return true, nil
	}
	for {
		ok, err := fi.iter.HasNext()
		if err != nil || !ok {
			return false, err
		}
		a, err := fi.iter.Next()
		if err != nil {
			return false, err
		}
		if fi.filter(a) {
			fi.pending = a
			return true, nil
		}
	}
}

// Next returns the next atom that passes the filter
func (fi *FilteredIterator) Next() (*atom.Atom, error) {
	ok, err := fi.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, iterator.ErrExhausted
	}
	a := fi.pending
	fi.pending = nil
	return a, nil
}

// Remove is not supported
func (fi *FilteredIterator) Remove() error {
	return iterator.ErrUnsupportedOperation
}

// Close closes the wrapped iterator
func (fi *FilteredIterator) Close() error {
	fi.pending = nil
	return fi.iter.Close()
}

// PrefixFilterFunc creates a filter function for atoms whose name has a specific prefix
func PrefixFilterFunc(prefix []byte) AtomFilterFunc {
	return func(a *atom.Atom) bool {
		return bytes.HasPrefix(a.Name, prefix)
	}
}

// SuffixFilterFunc creates a filter function for atoms whose name has a specific suffix
func SuffixFilterFunc(suffix []byte) AtomFilterFunc {
	return func(a *atom.Atom) bool {
		return bytes.HasSuffix(a.Name, suffix)
	}
}

// LiveFilterFunc keeps columns that hold a value and were written after the
// row-level deletion. Tombstones and range tombstones are dropped.
func LiveFilterFunc(rowDeletion atom.DeletionTime) AtomFilterFunc {
	return func(a *atom.Atom) bool {
		return a.IsLive() && !rowDeletion.Shadows(a.Timestamp)
	}
}

// AllOf keeps atoms that pass every filter
func AllOf(filters ...AtomFilterFunc) AtomFilterFunc {
	return func(a *atom.Atom) bool {
		for _, f := range filters {
			if !f(a) {
				return false
			}
		}
		return true
	}
}

// NewPrefixIterator returns an iterator that filters atoms by name prefix
func NewPrefixIterator(iter iterator.AtomIterator, prefix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, PrefixFilterFunc(prefix))
}

// NewSuffixIterator returns an iterator that filters atoms by name suffix
func NewSuffixIterator(iter iterator.AtomIterator, suffix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, SuffixFilterFunc(suffix))
}

// NewLiveIterator returns an iterator over the live columns of a row. The row
// deletion is taken from the wrapped iterator's header.
func NewLiveIterator(iter iterator.AtomIterator) *FilteredIterator {
	deletion := atom.LiveDeletion
	if h := iter.RowHeader(); h != nil {
		deletion = h.Deletion
	}
	return NewFilteredIterator(iter, LiveFilterFunc(deletion))
}
