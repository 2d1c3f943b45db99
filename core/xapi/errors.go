package xapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a state or profile document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTimeout is returned when a record store call exceeds its deadline.
	ErrTimeout = errors.New("record store timed out")
)

// UpstreamError reports a failed call to the record store: transport errors,
// auth rejections and unexpected status codes.
type UpstreamError struct {
	Op         string // failing operation, e.g. "saving statement"
	StatusCode int    // 0 when the failure happened before a response
	Err        error
}

func NewUpstreamError(op string, code int, err error) *UpstreamError {
	return &UpstreamError{Op: op, StatusCode: code, Err: err}
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: record store returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Cause() error  { return e.Err }
func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err (or its cause) is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
