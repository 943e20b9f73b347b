package sink

import "errors"

var (
	// ErrWriteFailed is returned when a record could not be appended.
	ErrWriteFailed = errors.New("sink: write failed")

	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("sink: closed")
)
