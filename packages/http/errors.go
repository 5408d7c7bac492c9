package http

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActionable indicates a descriptor with a bad endpoint or method
	ErrNotActionable = errors.New("request is not actionable")

	// ErrCancelled indicates the task was cancelled before it was prepared
	ErrCancelled = errors.New("task cancelled")

	// ErrInvalidProxy indicates a proxy descriptor that cannot be used
	ErrInvalidProxy = errors.New("invalid proxy")
)

// ClientBuildError reports a failure while preparing the client. Nothing was
// sent when this error is returned.
type ClientBuildError struct {
	ReferenceID int64
	Err         error
}

func (e *ClientBuildError) Error() string {
	return fmt.Sprintf("request %d: building client: %v", e.ReferenceID, e.Err)
}

func (e *ClientBuildError) Unwrap() error {
	return e.Err
}

// RequestExecutionError reports an I/O failure while sending the request or
// receiving the response headers.
type RequestExecutionError struct {
	ReferenceID int64
	Err         error
}

func (e *RequestExecutionError) Error() string {
	return fmt.Sprintf("request %d: execution failed: %v", e.ReferenceID, e.Err)
}

func (e *RequestExecutionError) Unwrap() error {
	return e.Err
}

// CancelledError reports a task cancelled before its client was built
type CancelledError struct {
	ReferenceID int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("request %d: %v", e.ReferenceID, ErrCancelled)
}

func (e *CancelledError) Unwrap() error {
	return ErrCancelled
}
