package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// eventReset returns the sensor to unknown when the broker link drops.
const eventReset = "reset"

var allSensorStates = []string{
	string(SensorUnknown),
	string(SensorConnected),
	string(SensorDataPresent),
	string(SensorDisconnected),
}

// sensorMachine is the sensor state machine. Every event is accepted from
// every state; firing an event that leads to the current state is a no-op.
//
// Not safe for concurrent use; the coordinator serialises access under its lock.
type sensorMachine struct {
	fsm *fsm.FSM
}

func newSensorMachine() *sensorMachine {
	return &sensorMachine{
		fsm: fsm.NewFSM(
			string(SensorUnknown),
			fsm.Events{
				{Name: string(EventPing), Src: allSensorStates, Dst: string(SensorConnected)},
				{Name: string(EventData), Src: allSensorStates, Dst: string(SensorDataPresent)},
				{Name: string(EventDisconnected), Src: allSensorStates, Dst: string(SensorDisconnected)},
				{Name: eventReset, Src: allSensorStates, Dst: string(SensorUnknown)},
			},
			fsm.Callbacks{},
		),
	}
}

// apply moves the machine according to a classified event.
func (m *sensorMachine) apply(kind EventKind) error {
	return m.fire(string(kind))
}

// reset moves the machine back to unknown.
func (m *sensorMachine) reset() {
	// reset is defined from every state, only NoTransitionError can occur.
	_ = m.fire(eventReset)
}

func (m *sensorMachine) state() SensorState {
	return SensorState(m.fsm.Current())
}

func (m *sensorMachine) fire(event string) error {
	err := m.fsm.Event(context.Background(), event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return fmt.Errorf("sensor event %q: %w", event, err)
}
