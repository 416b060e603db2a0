package relay

import (
	"fmt"
	"time"
)

// ConnectionStatus is the cached state of the broker link.
type ConnectionStatus bool

const (
	Offline ConnectionStatus = false
	Online  ConnectionStatus = true
)

// String returns "online" or "offline".
func (s ConnectionStatus) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "online" and "offline".
func (s *ConnectionStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "online":
		*s = Online
	case "offline":
		*s = Offline
	default:
		return fmt.Errorf("relay: invalid connection status %q", text)
	}
	return nil
}

// SensorState is what the relay currently knows about the proximity sensor.
type SensorState string

const (
	// SensorUnknown means no telemetry since the last broker connection.
	SensorUnknown SensorState = "unknown"

	// SensorConnected means the sensor is reachable and idle.
	SensorConnected SensorState = "connected"

	// SensorDataPresent means the sensor reported a trigger (the doorbell ring).
	SensorDataPresent SensorState = "data_present"

	// SensorDisconnected means the sensor reported itself offline.
	SensorDisconnected SensorState = "disconnected"
)

// EventKind classifies an inbound sensor message.
type EventKind string

const (
	EventPing         EventKind = "ping"
	EventData         EventKind = "data"
	EventDisconnected EventKind = "disconnected"
)

// ParseEventKind converts a string into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventPing, EventData, EventDisconnected:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
}

// State returns the sensor state an event moves the machine to.
func (k EventKind) State() SensorState {
	switch k {
	case EventPing:
		return SensorConnected
	case EventData:
		return SensorDataPresent
	case EventDisconnected:
		return SensorDisconnected
	default:
		return SensorUnknown
	}
}

// Snapshot is a consistent copy of the coordinator state group.
type Snapshot struct {
	Connection           ConnectionStatus `json:"connection"`
	Sensor               SensorState      `json:"sensor"`
	DeliberateDisconnect bool             `json:"deliberate_disconnect"`
	RetryAttempts        int              `json:"retry_attempts"`
	Retrying             bool             `json:"retrying"`
	LastEvent            EventKind        `json:"last_event,omitempty"`
	LastEventAt          *time.Time       `json:"last_event_at,omitempty"`
}
