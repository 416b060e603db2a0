package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as a fire-and-forget transport.
//
// Connect, Disconnect and Close never wait for the network; outcomes are
// reported later through the OnConnect, OnDisconnect and OnConnectError
// callbacks. Lifecycle requests are applied to the underlying paho client
// strictly in the order they were made.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks filters acknowledged on the current connection.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// Lifecycle state.
	connected  bool
	connecting bool
	closed     bool
	connMu     sync.RWMutex

	// ops serialises connect/disconnect requests onto one goroutine.
	ops      chan func()
	done     chan struct{}
	released chan struct{}

	// Callbacks for connection events (optional).
	onConnect      func()
	onDisconnect   func(err error)
	onConnectError func(err error)
	callbackMu     sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the paho router goroutine, in arrival order. They
// should not block for extended periods.
type MessageHandler = func(topic string, payload []byte) error

// opsQueueSize bounds the number of pending lifecycle requests.
const opsQueueSize = 16

// New builds a client from configuration without connecting.
//
// Call Connect to start the first connection attempt.
func New(cfg config.MQTTConfig) (*Client, error) {
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrInvalidConfig)
	}
	if cfg.Broker.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
		ops:           make(chan func(), opsQueueSize),
		done:          make(chan struct{}),
		released:      make(chan struct{}),
		logger:        noopLogger{},
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.getLogger().Info("MQTT reconnecting", "broker", cfg.Broker.Addr())
	})

	c.client = pahomqtt.NewClient(opts)
	go c.runOps()

	return c, nil
}

// runOps applies queued lifecycle requests in order until Close.
func (c *Client) runOps() {
	defer close(c.released)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			return
		}
	}
}

// enqueue schedules a lifecycle request. It reports false once the
// client has been released.
func (c *Client) enqueue(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// Connect requests a connection to the broker and returns immediately.
//
// A request made while a connection attempt is in flight, while already
// connected, or after Close is logged and ignored.
func (c *Client) Connect() {
	c.connMu.Lock()
	switch {
	case c.closed:
		c.connMu.Unlock()
		c.getLogger().Debug("MQTT connect ignored, client closed")
		return
	case c.connecting || c.connected:
		c.connMu.Unlock()
		c.getLogger().Debug("MQTT connect ignored, already connecting or connected")
		return
	}
	c.connecting = true
	c.connMu.Unlock()

	c.enqueue(func() {
		token := c.client.Connect()
		go c.awaitConnect(token)
	})
}

// awaitConnect waits for a connect token and reports failures.
// The wait is bounded by the configured connect timeout unless the
// library owns reconnection, in which case it ends on first success.
func (c *Client) awaitConnect(token pahomqtt.Token) {
	token.Wait()

	err := token.Error()

	c.connMu.Lock()
	c.connecting = false
	c.connMu.Unlock()

	if err == nil {
		return
	}

	c.getLogger().Warn("MQTT connect failed",
		"broker", c.cfg.Broker.Addr(),
		"error", err,
	)

	c.callbackMu.RLock()
	callback := c.onConnectError
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connecting = false
	c.connMu.Unlock()

	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	c.clearSubscriptions()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus publishes the relay presence payload when a status topic
// is configured. Delivery is not awaited.
func (c *Client) publishStatus(payload string) pahomqtt.Token {
	if c.cfg.Topics.Status == "" {
		return nil
	}
	return c.client.Publish(c.cfg.Topics.Status, byte(c.cfg.QoS), true, payload)
}

// Disconnect requests a graceful disconnect and returns immediately.
//
// The connection-lost callback is not invoked for a requested disconnect.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return
	}
	wasConnected := c.connected
	c.connected = false
	c.connecting = false
	c.connMu.Unlock()

	c.enqueue(func() {
		c.disconnect(wasConnected)
	})
}

// disconnect runs on the ops goroutine.
func (c *Client) disconnect(wasConnected bool) {
	if wasConnected {
		if token := c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID)); token != nil {
			token.WaitTimeout(defaultPublishTimeout)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.clearSubscriptions()
}

// Close requests a final disconnect and releases the client. It returns
// immediately; use WaitClosed to wait for the release to be applied.
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.connected
	c.connected = false
	c.connecting = false
	c.connMu.Unlock()

	// Queued behind earlier lifecycle requests. The queue may be full, so
	// the handoff itself runs off the caller's goroutine.
	go c.enqueue(func() {
		c.disconnect(wasConnected)
		close(c.done)
	})

	return nil
}

// WaitClosed blocks until a Close has been applied or ctx is done.
func (c *Client) WaitClosed(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	select {
	case <-c.released:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt close: %w", ctx.Err())
	}
}

// HealthCheck verifies the MQTT connection is alive and that at least one
// subscription is in place on it.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	if c.SubscriptionCount() == 0 {
		return ErrNoSubscriptions
	}

	return nil
}

// isClosed reports whether Close has been called.
func (c *Client) isClosed() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.closed
}

// IsConnected reports whether the link to the broker is open right now.
//
// A client that the library is reconnecting in the background reports false.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectError sets a callback to be invoked when a connect attempt fails.
func (c *Client) SetOnConnectError(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectError = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for lifecycle, error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
