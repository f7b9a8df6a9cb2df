package value

import (
	"errors"
	"fmt"
)

var (
	// ErrType is returned when a segment is used against a node whose kind
	// cannot support it, or a value cannot be converted for its target.
	ErrType = errors.New("type error")

	// ErrIndex is returned when writing past the end of a sequence.
	ErrIndex = errors.New("index out of range")

	// ErrReadOnly is returned when writing into a read-only tree.
	ErrReadOnly = errors.New("read-only")
)

// PathError records a failed operation and the label of the node involved.
type PathError struct {
	Op     string
	Label  string
	Err    error
	Detail string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Label, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Label, e.Err)
}

// Unwrap returns the sentinel error.
func (e *PathError) Unwrap() error { return e.Err }

func typeError(detail string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrType, fmt.Sprintf(detail, args...))
}

func indexError(i, n int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrIndex, i, n)
}

// IsTypeError reports whether err is a type error.
func IsTypeError(err error) bool { return errors.Is(err, ErrType) }

// IsIndexError reports whether err is an index error.
func IsIndexError(err error) bool { return errors.Is(err, ErrIndex) }

// IsReadOnly reports whether err was caused by writing into a read-only tree.
func IsReadOnly(err error) bool { return errors.Is(err, ErrReadOnly) }
