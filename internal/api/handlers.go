package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/damaru/doorbell/internal/history"
	"github.com/damaru/doorbell/internal/infrastructure/mqtt"
	"github.com/damaru/doorbell/internal/relay"
)

// healthCheckTimeout bounds each component check made by GET /health.
const healthCheckTimeout = 2 * time.Second

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Connection relay.ConnectionStatus `json:"connection"`
	Components map[string]string      `json:"components,omitempty"`
}

// handleHealth reports the cached connection and every component check.
// Any failing component turns the answer into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    s.version,
		Connection: s.coord.Snapshot().Connection,
	}

	if len(s.components) > 0 {
		resp.Components = make(map[string]string, len(s.components))
	}
	for name, component := range s.components {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := component.HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			continue
		}
		resp.Components[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

// handleConnect is the explicit user connect. The outcome arrives later as
// a connection.changed message, so the response is 202 with the current
// snapshot.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("connect requested", "request_id", r.Context().Value(ctxKeyRequestID))
	s.coord.Connect()
	writeJSON(w, http.StatusAccepted, s.coord.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("disconnect requested", "request_id", r.Context().Value(ctxKeyRequestID))
	s.coord.Disconnect()
	writeJSON(w, http.StatusAccepted, s.coord.Snapshot())
}

// eventsResponse is the body of GET /events.
type eventsResponse struct {
	Events []history.Entry `json:"events"`
	Count  int             `json:"count"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading event history failed", "error", err)
		writeInternalError(w, "failed to read event history")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: entries, Count: len(entries)})
}

// handleSimulate publishes a synthetic sensor message for {kind} so it
// round-trips the broker like a real one.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	kind, err := relay.ParseEventKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	switch err := s.coord.Simulate(kind); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"simulated": kind})
	case errors.Is(err, relay.ErrDestroyed), errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, mqtt.ErrClosed):
		writeError(w, http.StatusConflict, ErrCodeConflict, "relay is not connected to the broker")
	default:
		s.logger.Warn("simulation publish failed", "kind", kind, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "publish to broker failed")
	}
}
