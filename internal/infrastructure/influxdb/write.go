package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSignal   = "device_signal"
	MeasurementPresence = "device_presence"
	MeasurementCommand  = "command_outcome"
	MeasurementInbound  = "inbound_message"
)

// WriteSignalQuality records a heartbeat's signal quality (0-31).
func (c *Client) WriteSignalQuality(deviceID string, signal int, at time.Time) {
	c.writePoint(signalPoint(deviceID, signal, at))
}

// WritePresence records a device going online or offline.
func (c *Client) WritePresence(deviceID string, online bool, at time.Time) {
	c.writePoint(presencePoint(deviceID, online, at))
}

// WriteCommandOutcome records the terminal result of a command. kind is
// the command kind (message, call or code) and status its final state.
func (c *Client) WriteCommandOutcome(kind, status string, success bool, at time.Time) {
	c.writePoint(commandPoint(kind, status, success, at))
}

// WriteInboundMessage counts an SMS received by a device.
func (c *Client) WriteInboundMessage(deviceID string, at time.Time) {
	c.writePoint(inboundPoint(deviceID, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func signalPoint(deviceID string, signal int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSignal,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"signal": signal},
		at,
	)
}

func presencePoint(deviceID string, online bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementPresence,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"online": online},
		at,
	)
}

func commandPoint(kind, status string, success bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{"kind": kind, "status": status},
		map[string]interface{}{"success": success, "count": 1},
		at,
	)
}

func inboundPoint(deviceID string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementInbound,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"count": 1},
		at,
	)
}
