package relay

import "testing"

func TestSensorMachine_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		events []EventKind
		want   SensorState
	}{
		{"initial", nil, SensorUnknown},
		{"ping", []EventKind{EventPing}, SensorConnected},
		{"data after ping", []EventKind{EventPing, EventData}, SensorDataPresent},
		{"ping supersedes data", []EventKind{EventData, EventPing}, SensorConnected},
		{"repeated data", []EventKind{EventData, EventData}, SensorDataPresent},
		{"sensor offline", []EventKind{EventPing, EventDisconnected}, SensorDisconnected},
		{"back from offline", []EventKind{EventDisconnected, EventPing}, SensorConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newSensorMachine()
			for _, e := range tt.events {
				if err := m.apply(e); err != nil {
					t.Fatalf("apply(%s) error = %v", e, err)
				}
			}
			if got := m.state(); got != tt.want {
				t.Errorf("state() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSensorMachine_Reset(t *testing.T) {
	m := newSensorMachine()
	m.reset()
	if got := m.state(); got != SensorUnknown {
		t.Errorf("reset from unknown: state() = %s", got)
	}

	for _, e := range []EventKind{EventPing, EventData, EventDisconnected} {
		if err := m.apply(e); err != nil {
			t.Fatalf("apply(%s) error = %v", e, err)
		}
		m.reset()
		if got := m.state(); got != SensorUnknown {
			t.Errorf("reset after %s: state() = %s, want unknown", e, got)
		}
	}
}

func TestSensorMachine_UnknownEvent(t *testing.T) {
	m := newSensorMachine()
	if err := m.apply("doorknock"); err == nil {
		t.Error("apply(unknown) error = nil, want error")
	}
	if got := m.state(); got != SensorUnknown {
		t.Errorf("state() = %s after rejected event, want unknown", got)
	}
}

func TestEventKind_State(t *testing.T) {
	if EventPing.State() != SensorConnected ||
		EventData.State() != SensorDataPresent ||
		EventDisconnected.State() != SensorDisconnected ||
		EventKind("x").State() != SensorUnknown {
		t.Error("EventKind.State() mapping is wrong")
	}
}
