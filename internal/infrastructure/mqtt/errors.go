package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned by New when required settings are missing.
	ErrInvalidConfig = errors.New("mqtt: invalid configuration")

	// ErrClosed is returned for operations on a client after Close.
	ErrClosed = errors.New("mqtt: client closed")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the library error of a failed connect attempt.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrNoSubscriptions is returned by HealthCheck when the link is up but
	// the broker has acknowledged no subscription, so nothing is received.
	ErrNoSubscriptions = errors.New("mqtt: connected without subscriptions")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
