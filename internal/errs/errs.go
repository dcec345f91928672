// Package errs defines the error taxonomy shared by the fetch, buffer and
// controller layers. Callers classify failures with errors.Is / errors.As;
// wrap sites add context with github.com/pkg/errors.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a fetch that did not complete within its deadline.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrCancelled marks a fetch aborted by the caller, including the
	// implicit abort when a new request supersedes an outstanding one.
	ErrCancelled = errors.New("cancelled")
	// ErrNotInitialized marks a buffer operation issued before Initialize
	// completed. A contract violation, never retried.
	ErrNotInitialized = errors.New("sink not initialized")
	// ErrClosed marks an operation against a destroyed component.
	ErrClosed = errors.New("closed")
	// ErrNotSupported marks a sink that cannot create a buffer for the
	// requested media descriptor.
	ErrNotSupported = errors.New("media type not supported")
)

// StatusError is a non-success HTTP response. It is never silently treated
// as success; the status code and reason line are preserved for the caller.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// ParseError is a rejected manifest document.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest parse error at line %d: %s", e.Line, e.Reason)
}

// SinkOperationError is an append or removal the sink rejected. The buffer
// stays in a recoverable state after one; the caller may retry.
type SinkOperationError struct {
	Op  string
	Err error
}

func (e *SinkOperationError) Error() string {
	return fmt.Sprintf("sink %s failed: %v", e.Op, e.Err)
}

func (e *SinkOperationError) Unwrap() error {
	return e.Err
}
