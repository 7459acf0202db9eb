package protocol

import "time"

// Event types broadcast to clients.
const (
	EventPresence        = "presence"
	EventMessageResult   = "messageResult"
	EventMessageReceived = "messageReceived"
	EventCallStatus      = "callStatus"
	EventCodeResult      = "codeResult"
)

// Event is a status update fanned out to every client session.
type Event interface {
	EventType() string
	event()
}

// PresenceEvent reports a device coming online, going offline or sending a
// heartbeat.
type PresenceEvent struct {
	DeviceID string `json:"deviceId"`
	Online   bool   `json:"online"`
	Signal   *int   `json:"signal,omitempty"`
}

// MessageResultEvent reports the outcome of a sent message.
type MessageResultEvent struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// MessageReceivedEvent reports an inbound SMS.
type MessageReceivedEvent struct {
	DeviceID  string    `json:"deviceId"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// CallStatusEvent reports a call transition.
type CallStatusEvent struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Duration  *int   `json:"duration,omitempty"`
}

// CodeResultEvent reports a USSD reply.
type CodeResultEvent struct {
	CommandID string `json:"commandId"`
	Response  string `json:"response"`
	Success   bool   `json:"success"`
}

func (PresenceEvent) EventType() string        { return EventPresence }
func (MessageResultEvent) EventType() string   { return EventMessageResult }
func (MessageReceivedEvent) EventType() string { return EventMessageReceived }
func (CallStatusEvent) EventType() string      { return EventCallStatus }
func (CodeResultEvent) EventType() string      { return EventCodeResult }

func (PresenceEvent) event()        {}
func (MessageResultEvent) event()   {}
func (MessageReceivedEvent) event() {}
func (CallStatusEvent) event()      {}
func (CodeResultEvent) event()      {}
