// Package errors classifies failures and retries the ones worth retrying.
//
// Event-level failures (bad names, rejected or malformed payloads, values
// the wire form cannot carry) are permanent: sending the same bytes again
// gives the same answer. Network hiccups, timeouts and dropped connections
// are transient and go through WithRetryContext.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/glowdan/framework/pkg/framework/event"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: connection resets, timeouts, a peer restarting.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: invalid event names, rejected payloads, cancelled contexts.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and the operation that
// produced it.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts is the number of tries made before giving up.
	Attempts int

	// Op names the operation, e.g. "relay publish".
	Op string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Op, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Op: op}
}

// Permanent marks err as final.
func Permanent(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Op: op}
}

// Categorize determines how an error should be handled. Unknown errors are
// permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	switch {
	case errors.Is(err, event.ErrInvalidName),
		errors.Is(err, event.ErrNullArgument),
		errors.Is(err, event.ErrDecodeRejected),
		errors.Is(err, event.ErrMalformed),
		errors.Is(err, event.ErrUnsupportedValue):
		return CategoryPermanent
	case errors.Is(err, context.Canceled):
		return CategoryPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransient
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
