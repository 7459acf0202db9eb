package events

import (
	"context"
	"time"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// TelemetryWriter is the part of the InfluxDB client telemetry uses.
type TelemetryWriter interface {
	WriteSignalQuality(deviceID string, signal int, at time.Time)
	WritePresence(deviceID string, online bool, at time.Time)
	WriteCommandOutcome(kind, status string, success bool, at time.Time)
	WriteInboundMessage(deviceID string, at time.Time)
}

// Command kinds as recorded in telemetry.
const (
	outcomeMessage = "message"
	outcomeCall    = "call"
	outcomeCode    = "code"
)

// Telemetry records bus events as time-series points.
type Telemetry struct {
	w   TelemetryWriter
	now func() time.Time
}

// NewTelemetry creates a telemetry sink over w.
func NewTelemetry(w TelemetryWriter) *Telemetry {
	return &Telemetry{w: w, now: time.Now}
}

// Handle writes the points for ev. Non-terminal call transitions are not
// recorded.
func (t *Telemetry) Handle(_ context.Context, ev protocol.Event) error {
	now := t.now()

	switch e := ev.(type) {
	case protocol.PresenceEvent:
		t.w.WritePresence(e.DeviceID, e.Online, now)
		if e.Signal != nil {
			t.w.WriteSignalQuality(e.DeviceID, *e.Signal, now)
		}
	case protocol.MessageResultEvent:
		t.w.WriteCommandOutcome(outcomeMessage, string(stateOf(e.Success)), e.Success, now)
	case protocol.CodeResultEvent:
		t.w.WriteCommandOutcome(outcomeCode, string(stateOf(e.Success)), e.Success, now)
	case protocol.CallStatusEvent:
		status := command.CallStatus(e.Status)
		if status.Terminal() {
			t.w.WriteCommandOutcome(outcomeCall, e.Status, status == command.CallEnded, now)
		}
	case protocol.MessageReceivedEvent:
		t.w.WriteInboundMessage(e.DeviceID, e.Timestamp)
	}
	return nil
}

func stateOf(success bool) command.State {
	return command.Result{Success: success}.State()
}
