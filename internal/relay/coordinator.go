package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

// Transport is the broker client the coordinator drives.
//
// Connect, Disconnect and Close must not wait for the network. Connect
// while already connecting or connected must be ignored by the transport.
type Transport interface {
	Connect()
	Disconnect()
	Close() error
	IsConnected() bool
	Subscribe(filter string, qos byte, handler func(topic string, payload []byte) error) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Logger is the logging interface used by the coordinator.
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

// Options holds what New needs to build a coordinator.
type Options struct {
	// Transport is the broker client. Required.
	Transport Transport

	// Config is the mqtt section of the relay configuration.
	Config config.MQTTConfig

	// Logger is optional; defaults to discarding.
	Logger Logger

	// Scheduler runs delayed retry checks. Defaults to time.AfterFunc.
	Scheduler Scheduler

	// Recorders always receive notifications, whether or not a foreground
	// sink is attached. Used for history.
	Recorders []Sink

	// Now overrides the clock used to stamp events.
	Now func() time.Time
}

// Coordinator owns the broker connection lifecycle and the sensor state.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Transport callbacks may arrive on any goroutine.
type Coordinator struct {
	transport     Transport
	topics        Topics
	qos           byte
	autoReconnect bool
	retry         retryPolicy
	scheduler     Scheduler
	recorders     []Sink
	logger        Logger
	now           func() time.Time

	// mu guards everything below.
	mu          sync.Mutex
	status      ConnectionStatus
	sensor      *sensorMachine
	deliberate  bool
	attempts    int
	retrying    bool
	generation  uint64
	pending     Timer
	destroyed   bool
	lastEvent   EventKind
	lastEventAt time.Time

	sink       Sink
	outbox     []notification
	delivering bool
}

// New validates the configuration and registers the coordinator for the
// transport's connect, disconnect and message callbacks. It does not connect.
func New(opts Options) (*Coordinator, error) {
	if opts.Transport == nil {
		return nil, ErrNilTransport
	}
	if err := validate(opts.Config); err != nil {
		return nil, err
	}

	c := &Coordinator{
		transport: opts.Transport,
		topics: Topics{
			Filter:  opts.Config.Topics.Filter,
			Control: opts.Config.Topics.Control,
			Data:    opts.Config.Topics.Data,
		},
		qos:           byte(opts.Config.QoS),
		autoReconnect: opts.Config.Session.AutoReconnect,
		retry: retryPolicy{
			delay:       opts.Config.RetryDelay(),
			maxAttempts: opts.Config.Retry.MaxAttempts,
		},
		scheduler: opts.Scheduler,
		recorders: opts.Recorders,
		logger:    opts.Logger,
		now:       opts.Now,
		status:    Offline,
		sensor:    newSensorMachine(),
	}
	if c.scheduler == nil {
		c.scheduler = realScheduler{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.transport.SetOnConnect(c.handleConnected)
	c.transport.SetOnDisconnect(c.handleDisconnected)

	return c, nil
}

// validate checks presence only.
func validate(cfg config.MQTTConfig) error {
	switch {
	case cfg.Broker.Host == "":
		return fmt.Errorf("%w: broker host is required", ErrInvalidConfig)
	case cfg.Broker.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	case cfg.Topics.Filter == "" || cfg.Topics.Control == "" || cfg.Topics.Data == "":
		return fmt.Errorf("%w: topic filter, control and data are required", ErrInvalidConfig)
	case cfg.QoS < 0 || cfg.QoS > 2:
		return fmt.Errorf("%w: qos must be 0, 1 or 2", ErrInvalidConfig)
	case cfg.Retry.DelayMS <= 0 || cfg.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry delay and max attempts must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConnectFromInit connects unless the user deliberately disconnected or
// the transport is already connected.
func (c *Coordinator) ConnectFromInit() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	if c.deliberate {
		c.mu.Unlock()
		c.logger.Info("connect from init skipped, deliberately disconnected")
		return
	}
	c.mu.Unlock()

	if c.transport.IsConnected() {
		c.logger.Info("connect from init skipped, already connected")
		return
	}

	c.mu.Lock()
	c.cancelRetryLocked()
	c.mu.Unlock()

	c.logger.Info("connecting from init")
	c.transport.Connect()
}

// Connect clears the deliberate-disconnect flag and requests a connection.
// A pending retry sequence is abandoned.
func (c *Coordinator) Connect() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		c.logger.Warn("connect ignored, coordinator destroyed")
		return
	}
	c.deliberate = false
	c.cancelRetryLocked()
	c.mu.Unlock()

	c.logger.Info("connecting")
	c.transport.Connect()
}

// Disconnect deliberately takes the relay offline.
//
// It only acts when the cached status is online. While offline it is a
// no-op and leaves the deliberate-disconnect flag untouched, so a retry
// sequence already in progress keeps running.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	if c.destroyed || c.status != Online {
		c.mu.Unlock()
		c.logger.Debug("disconnect ignored, not connected")
		return
	}
	c.deliberate = true
	c.cancelRetryLocked()
	c.setOfflineLocked()
	c.enqueueLocked(statusNotification(Offline))
	c.mu.Unlock()

	c.logger.Info("disconnecting")
	c.transport.Disconnect()
	c.flush()
}

// IsConnected returns the cached connection status without querying the
// transport.
func (c *Coordinator) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == Online
}

// Destroy cancels pending retries and closes the transport.
// Calling Destroy more than once is a no-op.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.cancelRetryLocked()
	if c.status == Online {
		c.enqueueLocked(statusNotification(Offline))
	}
	c.setOfflineLocked()
	c.mu.Unlock()

	c.logger.Info("destroying coordinator")
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("closing transport failed", "error", err)
	}
	c.flush()
}

// Snapshot returns a consistent copy of the state group.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		Connection:           c.status,
		Sensor:               c.sensor.state(),
		DeliberateDisconnect: c.deliberate,
		RetryAttempts:        c.attempts,
		Retrying:             c.retrying,
		LastEvent:            c.lastEvent,
	}
	if !c.lastEventAt.IsZero() {
		at := c.lastEventAt
		s.LastEventAt = &at
	}
	return s
}

// Topics returns the sensor topic namespace in use.
func (c *Coordinator) Topics() Topics {
	return c.topics
}

// Simulate publishes a synthetic sensor message through the broker so it
// comes back through the normal message path.
func (c *Coordinator) Simulate(kind EventKind) error {
	if _, err := ParseEventKind(string(kind)); err != nil {
		return err
	}

	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}

	topic, payload := c.topics.simulated(kind)
	c.logger.Info("simulating sensor event", "kind", kind, "topic", topic)
	if err := c.transport.Publish(topic, payload, c.qos, false); err != nil {
		return fmt.Errorf("simulate %s: %w", kind, err)
	}
	return nil
}

// setOfflineLocked marks the link offline. Sensor state is only meaningful
// while the link is live.
func (c *Coordinator) setOfflineLocked() {
	c.status = Offline
	c.sensor.reset()
}

// subscribe registers the message handler on the sensor topic filter.
func (c *Coordinator) subscribe() {
	if err := c.transport.Subscribe(c.topics.Filter, c.qos, c.handleMessage); err != nil {
		c.logger.Warn("subscribing to sensor topics failed",
			"filter", c.topics.Filter,
			"error", err,
		)
		return
	}
	c.logger.Debug("subscribed to sensor topics", "filter", c.topics.Filter)
}

// handleConnected runs on every transport connect, including reconnects.
//
// The link is marked Online before subscribing: the broker may deliver
// retained messages as soon as it acknowledges the subscription, and
// those must advance the sensor state.
func (c *Coordinator) handleConnected() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.markOnlineLocked()
	c.mu.Unlock()

	c.logger.Info("broker connected")
	c.flush()

	c.subscribe()
}

// markOnlineLocked moves to Online and stops any retry sequence. Observers
// are only told when the status actually changes, since a retry check and
// the connect callback can both report the same link.
// Caller must hold c.mu.
func (c *Coordinator) markOnlineLocked() {
	wasOffline := c.status == Offline
	c.status = Online
	c.cancelRetryLocked()
	if wasOffline {
		c.enqueueLocked(statusNotification(Online))
	}
}

// handleDisconnected runs when the transport loses the link.
func (c *Coordinator) handleDisconnected(err error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.setOfflineLocked()
	c.enqueueLocked(statusNotification(Offline))
	gen, retry := c.beginRetryLocked()
	deliberate := c.deliberate
	c.mu.Unlock()

	c.logger.Info("broker disconnected",
		"error", err,
		"deliberate", deliberate,
		"retry", retry,
	)
	c.flush()

	if retry {
		c.attempt(gen)
	}
}

// handleMessage classifies an inbound message and updates the sensor state.
func (c *Coordinator) handleMessage(topic string, payload []byte) error {
	kind, ok := c.topics.Classify(topic, payload)
	if !ok {
		c.logger.Debug("ignoring message on unrecognised topic", "topic", topic)
		return nil
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	if c.status == Online {
		if err := c.sensor.apply(kind); err != nil {
			c.mu.Unlock()
			return err
		}
	} else {
		// The event is still reported; sensor state stays unknown until
		// the connect callback has been processed.
		c.logger.Debug("sensor message before connect callback", "kind", kind)
	}
	c.lastEvent = kind
	c.lastEventAt = c.now()
	c.enqueueLocked(eventNotification(kind, c.sensor.state()))
	c.mu.Unlock()

	if kind == EventPing {
		c.logger.Debug("sensor keepalive", "topic", topic)
	} else {
		c.logger.Info("sensor event", "kind", kind, "topic", topic)
	}
	c.flush()
	return nil
}
