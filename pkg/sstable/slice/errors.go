package slice

import (
	"errors"
	"fmt"

	"github.com/KevoDB/rowslice/pkg/common/iterator"
	"github.com/KevoDB/rowslice/pkg/sstable/atom"
)

var (
	// ErrExhausted is returned by Next when no atom remains
	ErrExhausted = iterator.ErrExhausted

	// ErrUnsupportedOperation is returned by Remove; slice iterators are read-only
	ErrUnsupportedOperation = iterator.ErrUnsupportedOperation

	// ErrCorruptData matches every CorruptDataError
	ErrCorruptData = atom.ErrCorrupt
)

// CorruptDataError reports a row that could not be decoded. It is fatal for the
// iteration that hit it.
type CorruptDataError struct {
	Key      []byte
	Position int64
	Err      error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt row %q at position %d: %v", e.Key, e.Position, e.Err)
}

func (e *CorruptDataError) Unwrap() error {
	return e.Err
}

// CloseError reports a failure releasing the iterator's cursor. The iterator is
// closed regardless.
type CloseError struct {
	Key []byte
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("failed to close slice iterator for %q: %v", e.Key, e.Err)
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

// classify wraps decode failures in a CorruptDataError and passes other
// errors through with context
func classify(key []byte, position int64, err error) error {
	if err == nil {
		return nil
	}
	var corrupt *CorruptDataError
	if errors.As(err, &corrupt) {
		return err
	}
	if errors.Is(err, atom.ErrCorrupt) {
		return &CorruptDataError{Key: key, Position: position, Err: err}
	}
	return fmt.Errorf("failed to read row %q at position %d: %w", key, position, err)
}
