// Package relay is the connection lifecycle and event-relay core of the
// doorbell relay.
//
// A Coordinator owns one broker Transport. It decides when to connect,
// when to stay offline because the user asked for it, and when to retry
// after an involuntary disconnect. It classifies inbound messages into
// sensor events and reports them to the attached Sink.
//
// # State
//
// The coordinator keeps one state group under a single lock:
//
//   - ConnectionStatus, the cached Online/Offline status of the link
//   - SensorState, driven by a looplab/fsm machine
//   - the deliberate-disconnect flag
//   - the retry counter and retry generation
//
// Going offline always resets the sensor to SensorUnknown. On connect the
// status becomes Online before the sensor filter is subscribed, so retained
// messages delivered with the subscription acknowledgement count.
//
// # Topics
//
//	proximity/control   "ping" or "connected" → ping, anything else → disconnected
//	proximity/data      any payload → data (the doorbell ring)
//
// Other topics are ignored.
//
// # Retry
//
// Unless session.auto_reconnect hands reconnection to the transport, an
// involuntary disconnect starts a bounded sequence: request a connect,
// wait retry.delay_ms, check the link. After retry.max_attempts failed
// checks the coordinator stays offline until Connect or ConnectFromInit.
// Every check carries a generation token, so a check that fires after
// Connect, a successful reconnect, or Destroy does nothing.
//
// # Observers
//
// At most one foreground Sink is attached at a time (Attach, Detach).
// Recorders passed in Options always receive notifications. Missed events
// are never replayed; observers resynchronise from Snapshot. Sinks that
// also implement SensorStateSink receive each event with the sensor state
// it produced.
package relay
