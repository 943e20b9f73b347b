package journal

import "errors"

var (
	// ErrInvalidEntry is returned when an entry is missing its topic.
	ErrInvalidEntry = errors.New("journal: invalid entry")
)
