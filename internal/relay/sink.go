package relay

// Sink observes the coordinator.
//
// Methods are called synchronously, in the order the coordinator changed
// state, on whichever goroutine is delivering at the time. A Sink must not
// block; it may call Snapshot.
type Sink interface {
	ConnectionStatusChanged(status ConnectionStatus)
	SensorEvent(kind EventKind)
}

// SensorStateSink is an optional extension of Sink. When a sink implements
// it, sensor events are delivered through SensorEventState together with
// the sensor state the event left behind, instead of through SensorEvent.
type SensorStateSink interface {
	SensorEventState(kind EventKind, sensor SensorState)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
// Use it by pointer so attached sinks stay comparable.
type SinkFuncs struct {
	OnStatus func(ConnectionStatus)
	OnEvent  func(EventKind)
}

func (f *SinkFuncs) ConnectionStatusChanged(status ConnectionStatus) {
	if f.OnStatus != nil {
		f.OnStatus(status)
	}
}

func (f *SinkFuncs) SensorEvent(kind EventKind) {
	if f.OnEvent != nil {
		f.OnEvent(kind)
	}
}

// notification is one queued Sink call.
type notification struct {
	status   ConnectionStatus
	kind     EventKind
	sensor   SensorState
	isStatus bool
}

func statusNotification(s ConnectionStatus) notification {
	return notification{status: s, isStatus: true}
}

// eventNotification records kind with the sensor state it produced.
func eventNotification(k EventKind, sensor SensorState) notification {
	return notification{kind: k, sensor: sensor}
}

// Attach makes sink the foreground observer, replacing any previous one.
//
// Missed events are not replayed. The returned Snapshot is taken at the
// moment of attachment so the observer can resynchronise from it.
func (c *Coordinator) Attach(sink Sink) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sink = sink
	c.logger.Debug("sink attached")
	return c.snapshotLocked()
}

// Detach removes sink if it is the attached observer. Coordinator state
// and pending retry checks are unaffected.
func (c *Coordinator) Detach(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sink == sink {
		c.sink = nil
		c.logger.Debug("sink detached")
	}
}

// enqueueLocked queues a notification. Caller must hold c.mu and call
// flush after releasing it.
func (c *Coordinator) enqueueLocked(n notification) {
	c.outbox = append(c.outbox, n)
}

// flush delivers queued notifications outside the state lock.
//
// One goroutine delivers at a time and drains everything queued, including
// notifications queued by sinks during delivery, so order is preserved.
func (c *Coordinator) flush() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true

	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		targets := c.targetsLocked()
		c.mu.Unlock()

		for _, n := range batch {
			for _, s := range targets {
				c.deliver(s, n)
			}
		}

		c.mu.Lock()
	}

	c.delivering = false
	c.mu.Unlock()
}

// targetsLocked returns recorders followed by the attached sink.
func (c *Coordinator) targetsLocked() []Sink {
	targets := make([]Sink, 0, len(c.recorders)+1)
	targets = append(targets, c.recorders...)
	if c.sink != nil {
		targets = append(targets, c.sink)
	}
	return targets
}

func (c *Coordinator) deliver(s Sink, n notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sink panic recovered", "panic", r)
		}
	}()

	if n.isStatus {
		s.ConnectionStatusChanged(n.status)
		return
	}
	if ss, ok := s.(SensorStateSink); ok {
		ss.SensorEventState(n.kind, n.sensor)
		return
	}
	s.SensorEvent(n.kind)
}
