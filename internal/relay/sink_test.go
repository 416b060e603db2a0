package relay

import (
	"testing"
)

func TestAttach_ReturnsSnapshotWithoutReplay(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.deliver(t, "proximity/data", "ring")
	f.c.Detach(f.sink)

	late := &recordingSink{t: t, c: f.c}
	snap := f.c.Attach(late)

	if snap.Connection != Online || snap.Sensor != SensorDataPresent {
		t.Errorf("Attach() snapshot = %s/%s, want online/data_present", snap.Connection, snap.Sensor)
	}
	if got := late.Calls(); len(got) != 0 {
		t.Errorf("new sink received %v on attach, want no replay", got)
	}

	f.transport.deliver(t, "proximity/control", "ping")
	if got := late.Calls(); len(got) != 1 || got[0] != "event:ping" {
		t.Errorf("new sink calls = %v, want [event:ping]", got)
	}
}

func TestAttach_ReplacesPreviousSink(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	second := &recordingSink{t: t, c: f.c}
	f.sink.reset()

	f.c.Attach(second)
	f.transport.deliver(t, "proximity/data", "ring")

	if got := f.sink.Calls(); len(got) != 0 {
		t.Errorf("replaced sink received %v", got)
	}
	if got := second.Calls(); len(got) != 1 {
		t.Errorf("attached sink calls = %v, want one", got)
	}
}

func TestDetach_OnlyRemovesAttachedSink(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	stale := &recordingSink{t: t}
	f.sink.reset()

	f.c.Detach(stale)
	f.transport.deliver(t, "proximity/data", "ring")

	if got := f.sink.Calls(); len(got) != 1 {
		t.Errorf("attached sink calls = %v after detaching another sink, want one", got)
	}
}

func TestDetach_StateUnaffected(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.deliver(t, "proximity/control", "ping")
	before := f.c.Snapshot()

	f.c.Detach(f.sink)
	f.sink.reset()
	f.transport.deliver(t, "proximity/data", "ring")

	if got := f.sink.Calls(); len(got) != 0 {
		t.Errorf("detached sink received %v", got)
	}
	after := f.c.Snapshot()
	if before.Connection != after.Connection {
		t.Errorf("connection changed across Detach: %s → %s", before.Connection, after.Connection)
	}
	if after.Sensor != SensorDataPresent {
		t.Errorf("sensor = %s, want data_present with no sink attached", after.Sensor)
	}
}

func TestRecorders_AlwaysNotified(t *testing.T) {
	transport := &fakeTransport{}
	recorder := &recordingSink{t: t}
	c, err := New(Options{
		Transport: transport,
		Config:    testMQTTConfig(),
		Scheduler: &manualScheduler{},
		Recorders: []Sink{recorder},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	transport.establish()
	transport.deliver(t, "proximity/data", "ring")

	foreground := &recordingSink{t: t}
	c.Attach(foreground)
	c.Detach(foreground)
	transport.drop()

	want := []string{"status:online", "event:data", "status:offline"}
	got := recorder.Calls()
	if len(got) != len(want) {
		t.Fatalf("recorder calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recorder call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSink_ReentrantDisconnect(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.sink.reset()
	f.sink.onCall = func(call string) {
		if call == "event:disconnected" {
			f.c.Disconnect()
		}
	}

	f.transport.deliver(t, "proximity/control", "offline")

	want := []string{"event:disconnected", "status:offline"}
	got := f.sink.Calls()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sink calls = %v, want %v", got, want)
	}
	assertState(t, f.c, Offline, SensorUnknown)
}

func TestSink_PanicRecovered(t *testing.T) {
	f := newFixture(t)
	recorder := &recordingSink{t: t}
	f.c.recorders = []Sink{&SinkFuncs{
		OnEvent: func(EventKind) { panic("observer bug") },
	}, recorder}
	f.online(t)

	f.transport.deliver(t, "proximity/data", "ring")

	if got := recorder.count("event:data"); got != 1 {
		t.Errorf("sink after panicking sink got %d data events, want 1", got)
	}
	if f.sink.count("event:data") != 1 {
		t.Error("foreground sink missed the event after a recorder panic")
	}

	// Delivery is not wedged.
	f.transport.deliver(t, "proximity/control", "ping")
	if f.sink.count("event:ping") != 1 {
		t.Error("delivery stopped after a sink panic")
	}
}

func TestSinkFuncs_NilFields(t *testing.T) {
	var s Sink = &SinkFuncs{}
	s.ConnectionStatusChanged(Online)
	s.SensorEvent(EventData)

	var status ConnectionStatus
	var kind EventKind
	s = &SinkFuncs{
		OnStatus: func(v ConnectionStatus) { status = v },
		OnEvent:  func(v EventKind) { kind = v },
	}
	s.ConnectionStatusChanged(Online)
	s.SensorEvent(EventPing)

	if status != Online || kind != EventPing {
		t.Errorf("SinkFuncs forwarded %s/%s, want online/ping", status, kind)
	}
}

// stateSink records sensor events with the state delivered alongside them.
type stateSink struct {
	SinkFuncs
	got     []string
	onEvent func(kind EventKind)
}

func (s *stateSink) SensorEventState(kind EventKind, sensor SensorState) {
	s.got = append(s.got, string(kind)+"/"+string(sensor))
	if s.onEvent != nil {
		hook := s.onEvent
		s.onEvent = nil
		hook(kind)
	}
}

func TestSensorStateSink_StateAtProduction(t *testing.T) {
	f := newFixture(t)
	f.online(t)

	sink := &stateSink{}
	sink.onEvent = func(EventKind) {
		// Both are queued behind the current delivery; by the time the
		// ping is delivered the live sensor state is data_present again.
		f.transport.deliver(t, "proximity/control", "ping")
		f.transport.deliver(t, "proximity/data", "ring")
	}
	f.c.Attach(sink)

	f.transport.deliver(t, "proximity/data", "ring")

	want := []string{"data/data_present", "ping/connected", "data/data_present"}
	if len(sink.got) != len(want) {
		t.Fatalf("events = %v, want %v", sink.got, want)
	}
	for i := range want {
		if sink.got[i] != want[i] {
			t.Errorf("events = %v, want %v", sink.got, want)
			break
		}
	}
}

func TestSensorStateSink_OfflineEventKeepsUnknown(t *testing.T) {
	f := newFixture(t)
	sink := &stateSink{}
	f.c.Attach(sink)

	// A message before the connect callback is relayed without advancing
	// the sensor.
	f.c.Connect()
	f.c.handleMessage("proximity/data", []byte("ring"))

	if len(sink.got) != 1 || sink.got[0] != "data/unknown" {
		t.Errorf("events = %v, want [data/unknown]", sink.got)
	}
}
