package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/damaru/doorbell/internal/infrastructure/config"
	"github.com/damaru/doorbell/internal/infrastructure/logging"
	"github.com/damaru/doorbell/internal/relay"
)

// WebSocket message types.
const (
	WSTypeStateSync         = "state.sync"
	WSTypeConnectionChanged = "connection.changed"
	WSTypeSensorEvent       = "sensor.event"
	WSTypeSync              = "sync"
	WSTypePing              = "ping"
	WSTypePong              = "pong"
	WSTypeError             = "error"

	wsSendBufferSize = 64

	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 4096
)

// WSMessage is a message exchanged with a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// ConnectionChangedPayload is the payload of connection.changed.
type ConnectionChangedPayload struct {
	Connection relay.ConnectionStatus `json:"connection"`
}

// SensorEventPayload is the payload of sensor.event. Sensor is the sensor
// state after the event was applied.
type SensorEventPayload struct {
	Event  relay.EventKind   `json:"event"`
	Sensor relay.SensorState `json:"sensor"`
}

// Hub fans coordinator notifications out to WebSocket clients.
//
// The hub is the coordinator's foreground observer while at least one
// client is connected: it attaches when the first client registers and
// detaches when the last one leaves. Every new client starts with a
// state.sync snapshot; events missed while nobody was attached are not
// replayed.
type Hub struct {
	cfg    config.WebSocketConfig
	coord  Coordinator
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*WSClient]struct{}
	attached bool
	closed   bool
}

var (
	_ relay.Sink            = (*Hub)(nil)
	_ relay.SensorStateSink = (*Hub)(nil)
)

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are enforced by the CORS middleware.
		return true
	},
}

// NewHub creates a hub for coord.
func NewHub(cfg config.WebSocketConfig, coord Coordinator, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		coord:   coord,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client and queues its initial state.sync. It returns
// false once the hub is closed.
func (h *Hub) Register(client *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}

	var snap relay.Snapshot
	if !h.attached {
		snap = h.coord.Attach(h)
		h.attached = true
		h.logger.Debug("websocket hub attached to coordinator")
	} else {
		snap = h.coord.Snapshot()
	}
	client.trySend(encode(WSTypeStateSync, "", snap))

	h.logger.Debug("websocket client connected", "clients", len(h.clients))
	return true
}

// Unregister removes a client. The goroutine that removes it closes its
// send channel, so shutdown and disconnect cannot double-close.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if len(h.clients) == 0 && h.attached {
		h.coord.Detach(h)
		h.attached = false
		h.logger.Debug("websocket hub detached from coordinator")
	}
	h.logger.Debug("websocket client disconnected", "clients", len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectionStatusChanged broadcasts connection.changed.
func (h *Hub) ConnectionStatusChanged(status relay.ConnectionStatus) {
	h.broadcast(encode(WSTypeConnectionChanged, "", ConnectionChangedPayload{Connection: status}))
}

// SensorEvent broadcasts sensor.event with the state kind leads to.
func (h *Hub) SensorEvent(kind relay.EventKind) {
	h.SensorEventState(kind, kind.State())
}

// SensorEventState broadcasts sensor.event. The coordinator calls it with
// the sensor state recorded when the event was applied.
func (h *Hub) SensorEventState(kind relay.EventKind, sensor relay.SensorState) {
	h.broadcast(encode(WSTypeSensorEvent, "", SensorEventPayload{
		Event:  kind,
		Sensor: sensor,
	}))
}

func (h *Hub) broadcast(data []byte) {
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.trySend(data)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	if h.attached {
		h.coord.Detach(h)
		h.attached = false
	}
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) pongTimeout() time.Duration {
	if h.cfg.PongTimeout <= 0 {
		return defaultPongTimeout
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

func (h *Hub) maxMessageSize() int64 {
	if h.cfg.MaxMessageSize <= 0 {
		return defaultMaxMessageSize
	}
	return int64(h.cfg.MaxMessageSize)
}

// handleWebSocket upgrades the request. Authentication has already been
// done by authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	wait := c.hub.pingInterval() + c.hub.pongTimeout()
	c.conn.SetReadLimit(c.hub.maxMessageSize())
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(time.Now().Add(wait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.pongTimeout()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers client requests: ping and an explicit resync.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.trySend(encode(WSTypeError, "", map[string]string{"message": "invalid JSON message"}))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.trySend(encode(WSTypePong, msg.ID, nil))
	case WSTypeSync:
		c.trySend(encode(WSTypeStateSync, msg.ID, c.hub.coord.Snapshot()))
	default:
		c.trySend(encode(WSTypeError, msg.ID, map[string]string{"message": "unknown message type: " + msg.Type}))
	}
}

// trySend queues data without blocking. A full buffer drops the message;
// a closed channel (client leaving mid-broadcast) is absorbed.
func (c *WSClient) trySend(data []byte) {
	if data == nil {
		return
	}
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func encode(msgType, id string, payload any) []byte {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return nil
	}
	return data
}
