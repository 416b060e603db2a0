package relay

import "errors"

var (
	// ErrNilTransport is returned by New when no transport is supplied.
	ErrNilTransport = errors.New("relay: transport is required")

	// ErrInvalidConfig is returned by New when a required setting is missing.
	ErrInvalidConfig = errors.New("relay: invalid configuration")

	// ErrUnknownEvent is returned for an event name other than ping, data or disconnected.
	ErrUnknownEvent = errors.New("relay: unknown event kind")

	// ErrDestroyed is returned by Simulate after Destroy.
	ErrDestroyed = errors.New("relay: coordinator destroyed")
)
