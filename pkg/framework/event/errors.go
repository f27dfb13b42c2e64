package event

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	// ErrInvalidName indicates a name that is empty, too long, or does not
	// match the allowed pattern.
	ErrInvalidName = errors.New("invalid event name")

	// ErrNullArgument indicates SetParam or AddParam was called with NilKey.
	ErrNullArgument = errors.New("argument name cannot be nil")

	// ErrDecodeRejected indicates a payload that references a type outside
	// the decode allow-list.
	ErrDecodeRejected = errors.New("payload references a disallowed type")

	// ErrMalformed indicates a payload that is not a well-formed event triple.
	ErrMalformed = errors.New("malformed event payload")

	// ErrUnsupportedValue indicates a parameter value the wire form cannot carry.
	ErrUnsupportedValue = errors.New("unsupported parameter value")
)

// NameError describes why a name was refused.
type NameError struct {
	// Name is the offending input, after trimming.
	Name string
	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *NameError) Error() string {
	return fmt.Sprintf("invalid event name %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidName.
func (e *NameError) Unwrap() error {
	return ErrInvalidName
}

// CodecError wraps failures of Serialize and Restore.
type CodecError struct {
	// Op is "serialize" or "restore".
	Op string
	// Path locates the offending value inside the triple, e.g. "params.items[2]".
	Path string
	// Err is one of the package sentinels, possibly wrapping a library error.
	Err error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("event %s at %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("event %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CodecError) Unwrap() error {
	return e.Err
}
