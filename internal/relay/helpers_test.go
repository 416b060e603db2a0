package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

// fakeTransport records requests and lets tests drive the callbacks.
type fakeTransport struct {
	mu sync.Mutex

	connected       bool
	connectCalls    int
	disconnectCalls int
	closeCalls      int
	subscriptions   []string
	published       []publishedMessage
	retained        []publishedMessage

	handler      func(topic string, payload []byte) error
	onConnect    func()
	onDisconnect func(err error)

	subscribeErr error
	publishErr   error
	closeErr     error
}

type publishedMessage struct {
	topic   string
	payload string
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	f.connectCalls++
	f.mu.Unlock()
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnectCalls++
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.connected = false
	return f.closeErr
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Subscribe registers handler and then, like a broker holding retained
// messages, delivers f.retained before returning.
func (f *fakeTransport) Subscribe(filter string, _ byte, handler func(string, []byte) error) error {
	f.mu.Lock()
	if f.subscribeErr != nil {
		f.mu.Unlock()
		return f.subscribeErr
	}
	f.subscriptions = append(f.subscriptions, filter)
	f.handler = handler
	retained := append([]publishedMessage(nil), f.retained...)
	f.mu.Unlock()

	for _, m := range retained {
		if err := handler(m.topic, []byte(m.payload)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeTransport) SetOnConnect(cb func()) {
	f.mu.Lock()
	f.onConnect = cb
	f.mu.Unlock()
}

func (f *fakeTransport) SetOnDisconnect(cb func(error)) {
	f.mu.Lock()
	f.onDisconnect = cb
	f.mu.Unlock()
}

// establish marks the link up and fires the connect callback.
func (f *fakeTransport) establish() {
	f.mu.Lock()
	f.connected = true
	cb := f.onConnect
	f.mu.Unlock()
	cb()
}

// drop marks the link down and fires the disconnect callback.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	cb := f.onDisconnect
	f.mu.Unlock()
	cb(fmt.Errorf("connection reset"))
}

// deliver hands a message to the subscribed handler.
func (f *fakeTransport) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		t.Fatal("deliver: no subscription registered")
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) counts() (connects, disconnects, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.disconnectCalls, f.closeCalls
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscriptions)
}

// manualScheduler only runs callbacks when a test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{delay: d, f: f}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// pending returns the number of timers neither stopped nor fired.
func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// fireNext runs the oldest pending timer. It reports false if none is pending.
func (s *manualScheduler) fireNext() bool {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			t.fired = true
			next = t
		}
		t.mu.Unlock()
		if next != nil {
			break
		}
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// fireStopped runs every stopped timer anyway, as a timer facility that
// cannot be cancelled would.
func (s *manualScheduler) fireStopped() int {
	s.mu.Lock()
	var stopped []*manualTimer
	for _, t := range s.timers {
		t.mu.Lock()
		if t.stopped && !t.fired {
			t.fired = true
			stopped = append(stopped, t)
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()

	for _, t := range stopped {
		t.f()
	}
	return len(stopped)
}

func (s *manualScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return 0
	}
	return s.timers[len(s.timers)-1].delay
}

// recordingSink records notifications and checks the offline invariant
// from inside each callback.
type recordingSink struct {
	t *testing.T
	c *Coordinator

	mu     sync.Mutex
	calls  []string
	onCall func(string)
}

func (s *recordingSink) record(call string) {
	if s.c != nil {
		snap := s.c.Snapshot()
		if snap.Connection == Offline && snap.Sensor != SensorUnknown {
			s.t.Errorf("observed offline with sensor %q", snap.Sensor)
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}
}

func (s *recordingSink) ConnectionStatusChanged(status ConnectionStatus) {
	s.record("status:" + status.String())
}

func (s *recordingSink) SensorEvent(kind EventKind) {
	s.record("event:" + string(kind))
}

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSink) count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (s *recordingSink) last() string {
	calls := s.Calls()
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func testMQTTConfig() config.MQTTConfig {
	return config.Default().MQTT
}

// fixture bundles a coordinator with its fakes.
type fixture struct {
	c         *Coordinator
	transport *fakeTransport
	scheduler *manualScheduler
	sink      *recordingSink
}

func newFixture(t *testing.T, mutate ...func(*config.MQTTConfig)) *fixture {
	t.Helper()
	cfg := testMQTTConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	transport := &fakeTransport{}
	scheduler := &manualScheduler{}
	c, err := New(Options{
		Transport: transport,
		Config:    cfg,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sink := &recordingSink{t: t, c: c}
	c.Attach(sink)

	return &fixture{c: c, transport: transport, scheduler: scheduler, sink: sink}
}

// online brings the fixture to Online with a subscription in place.
func (f *fixture) online(t *testing.T) {
	t.Helper()
	f.c.Connect()
	f.transport.establish()
	if !f.c.IsConnected() {
		t.Fatal("coordinator not online after connect callback")
	}
}

func assertState(t *testing.T, c *Coordinator, status ConnectionStatus, sensor SensorState) {
	t.Helper()
	snap := c.Snapshot()
	if snap.Connection != status || snap.Sensor != sensor {
		t.Fatalf("state = %s/%s, want %s/%s", snap.Connection, snap.Sensor, status, sensor)
	}
}
