package dispatch

import "errors"

var (
	// ErrStopped is returned by Deliver once the dispatcher has been stopped.
	ErrStopped = errors.New("dispatch: dispatcher stopped")

	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.New("dispatch: dispatcher already running")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("dispatch: handler panicked")
)
