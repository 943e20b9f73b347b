package mqtt

import "errors"

// Connection errors. ErrConnectionFailed is fatal only for the first
// session; later losses are retried by the transport.
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrAlreadyConnected = errors.New("mqtt: client already connected")
	ErrTimeout          = errors.New("mqtt: operation timed out")
)

// Request errors, wrapped with the filter or topic involved.
var (
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
)

// Validation errors, returned before anything is sent to the broker.
var (
	ErrInvalidQoS    = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic  = errors.New("mqtt: invalid topic")
	ErrInvalidFilter = errors.New("mqtt: invalid topic filter")
)
