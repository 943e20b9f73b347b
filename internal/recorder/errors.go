package recorder

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.New("recorder: already running")

	// ErrNoSubscriptions is returned when the configuration has nothing to
	// subscribe to.
	ErrNoSubscriptions = errors.New("recorder: no subscriptions configured")
)
