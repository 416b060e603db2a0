package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Presence values published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to offline presence payloads.
const (
	reasonGraceful   = "graceful_shutdown"
	reasonUnexpected = "unexpected_disconnect"
)

// StatusPayload is the retained JSON document published on the status topic.
type StatusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) string {
	data, err := json.Marshal(StatusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Only strings are marshalled; this cannot fail.
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(data)
}

// buildOnlinePayload creates the payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return buildStatusPayload(StatusOnline, clientID, "")
}

// buildOfflinePayload creates the payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return buildStatusPayload(StatusOffline, clientID, reasonGraceful)
}

// buildWillPayload creates the last-will payload.
func buildWillPayload(clientID string) string {
	return buildStatusPayload(StatusOffline, clientID, reasonUnexpected)
}

// validatePublishTopic rejects empty topics and topics carrying wildcards.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards are not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// MatchTopic reports whether topic matches the MQTT subscription filter.
//
// Supports the single-level (+) and multi-level (#) wildcards.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
