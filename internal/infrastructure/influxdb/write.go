package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and tag names of exported relay events.
const (
	Measurement = "doorbell_events"

	tagKind  = "kind"
	tagValue = "value"

	kindConnection = "connection"
	kindSensor     = "sensor"
)

// WriteConnectionStatus records a broker connection change. status is the
// text form of the relay connection status ("online" or "offline").
func (c *Client) WriteConnectionStatus(status string, at time.Time) {
	c.writePoint(connectionPoint(status, at))
}

// WriteSensorEvent records a classified sensor event ("ping", "data" or
// "disconnected").
func (c *Client) WriteSensorEvent(kind string, at time.Time) {
	c.writePoint(sensorPoint(kind, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}

func connectionPoint(status string, at time.Time) *write.Point {
	return write.NewPoint(Measurement,
		map[string]string{tagKind: kindConnection, tagValue: status},
		map[string]interface{}{
			"count":  1,
			"online": status == "online",
		},
		at,
	)
}

func sensorPoint(kind string, at time.Time) *write.Point {
	return write.NewPoint(Measurement,
		map[string]string{tagKind: kindSensor, tagValue: kind},
		map[string]interface{}{"count": 1},
		at,
	)
}
