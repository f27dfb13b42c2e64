package errors

import (
	"fmt"
	"time"
)

// TimeoutError indicates an operation ran out of time.
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Op)
}

// Unwrap returns the cause, usually context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ConnectionError indicates a broker or database connection failed.
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
