// Package api serves the relay's HTTP API and WebSocket stream.
//
// Routes, all below /api/v1:
//
//	GET  /health                 liveness, version and broker connection
//	GET  /status                 coordinator snapshot
//	POST /connection/connect     explicit user connect (202)
//	POST /connection/disconnect  deliberate disconnect (202)
//	GET  /events?limit=N         recent event history
//	POST /test/{kind}            simulate ping, data or disconnected (test mode only)
//	GET  /ws                     WebSocket stream
//
// When security.jwt.secret is set every route except /health requires an
// HS256 bearer token; WebSocket clients may pass it as ?access_token=.
//
// The WebSocket hub is the coordinator's single foreground observer while
// any client is connected. Clients receive state.sync on connect and then
// connection.changed and sensor.event messages.
package api
