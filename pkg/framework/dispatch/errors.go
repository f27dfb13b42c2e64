package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUnnamedEvent is returned when dispatching an event without a name.
	ErrUnnamedEvent = errors.New("event has no name")

	// ErrMaxDepth is returned when listeners dispatch recursively past the
	// configured depth.
	ErrMaxDepth = errors.New("max dispatch depth exceeded")

	// ErrBusClosed is returned by Publish and Subscribe after Close.
	ErrBusClosed = errors.New("bus is closed")

	// ErrTooManySubscribers is returned when MaxSubscribers is reached.
	ErrTooManySubscribers = errors.New("subscriber limit reached")

	// ErrDeadLettersFull is returned when a dead-letter queue is at MaxSize.
	ErrDeadLettersFull = errors.New("dead-letter queue is full")

	// ErrDeadLetterNotFound is returned for an unknown dead-letter ID.
	ErrDeadLetterNotFound = errors.New("dead letter not found")
)

// ListenerError reports a listener that returned an error.
type ListenerError struct {
	Event    string // event name
	Listener string // listener label
	Index    int    // position in the chain
	Err      error
}

// Error implements error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("event %s: listener %s (#%d): %v", e.Event, e.Listener, e.Index, e.Err)
}

// Unwrap returns the listener's error.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// PanicError is produced by RecoveryMiddleware.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panic: %v", e.Value)
}
