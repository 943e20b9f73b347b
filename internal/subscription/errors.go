package subscription

import "errors"

// Domain-specific errors for subscription operations.
var (
	// ErrInvalidFilter is returned when a filter breaks the wildcard rules.
	ErrInvalidFilter = errors.New("subscription: invalid topic filter")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("subscription: invalid QoS level (must be 0, 1, or 2)")

	// ErrNotRegistered is returned when removing a filter that is not in the set.
	ErrNotRegistered = errors.New("subscription: filter not registered")
)
