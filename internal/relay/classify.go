package relay

import "strings"

// Topics names the sensor topic namespace.
type Topics struct {
	// Filter is the subscription filter, e.g. "proximity/#".
	Filter string

	// Control is the control channel prefix, e.g. "proximity/control".
	Control string

	// Data is the exact data channel topic, e.g. "proximity/data".
	Data string
}

// Keepalive payloads on the control channel. Anything else means the
// sensor went offline.
var keepaliveTokens = map[string]bool{
	"ping":      true,
	"connected": true,
}

// Classify maps an inbound message to a sensor event.
//
// The control channel matches its prefix on a topic segment boundary;
// the data channel must match exactly. The payload is only inspected on
// the control channel. ok is false for topics outside both channels.
func (t Topics) Classify(topic string, payload []byte) (kind EventKind, ok bool) {
	switch {
	case t.isControl(topic):
		if keepaliveTokens[string(payload)] {
			return EventPing, true
		}
		return EventDisconnected, true
	case topic == t.Data:
		return EventData, true
	default:
		return "", false
	}
}

func (t Topics) isControl(topic string) bool {
	if t.Control == "" {
		return false
	}
	return topic == t.Control || strings.HasPrefix(topic, t.Control+"/")
}

// simulated returns the topic and payload that produce kind when published.
func (t Topics) simulated(kind EventKind) (topic string, payload []byte) {
	switch kind {
	case EventPing:
		return t.Control, []byte("ping")
	case EventDisconnected:
		return t.Control, []byte("offline")
	default:
		return t.Data, []byte("test")
	}
}
