package command

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a command asks the device to do.
type Kind string

const (
	KindSendMessage Kind = "send_message"
	KindPlaceCall   Kind = "place_call"
	KindRunCode     Kind = "run_code"

	// KindEndCall and KindAnswerCall act on an existing call and never
	// create a Command of their own.
	KindEndCall    Kind = "end_call"
	KindAnswerCall Kind = "answer_call"
)

// State is the lifecycle state of a pending command.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further result may be applied.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Command is a client request forwarded to a device and awaiting its
// asynchronous result. The ID is the correlation key the device echoes back
// as commandId.
//
// send_message uses Phone and Body; run_code uses Code and, once complete,
// Response. place_call is tracked as a Call instead.
type Command struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	DeviceID    string     `json:"device_id"`
	State       State      `json:"state"`
	Phone       string     `json:"phone,omitempty"`
	Body        string     `json:"body,omitempty"`
	Code        string     `json:"code,omitempty"`
	Response    string     `json:"response,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewMessage builds a pending send_message command.
func NewMessage(deviceID, phone, body string, now time.Time) *Command {
	return &Command{
		ID:          uuid.NewString(),
		Kind:        KindSendMessage,
		DeviceID:    deviceID,
		State:       StatePending,
		Phone:       phone,
		Body:        body,
		SubmittedAt: now,
	}
}

// NewCode builds a pending run_code command.
func NewCode(deviceID, code string, now time.Time) *Command {
	return &Command{
		ID:          uuid.NewString(),
		Kind:        KindRunCode,
		DeviceID:    deviceID,
		State:       StatePending,
		Code:        code,
		SubmittedAt: now,
	}
}

// Result is the outcome a device reports for a command.
type Result struct {
	Success  bool
	Error    string
	Response string
}

// State maps the result onto a terminal command state.
func (r Result) State() State {
	if r.Success {
		return StateSucceeded
	}
	return StateFailed
}

// InboundMessage is an SMS received by a device.
type InboundMessage struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewInboundMessage builds an inbound message record. A zero receivedAt
// falls back to now.
func NewInboundMessage(deviceID, from, body string, receivedAt, now time.Time) *InboundMessage {
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return &InboundMessage{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		From:       from,
		Body:       body,
		ReceivedAt: receivedAt,
		CreatedAt:  now,
	}
}

// Filter narrows history listings. Zero values mean "any".
type Filter struct {
	Kind   Kind
	State  State
	Limit  int
	Offset int
}

// Totals summarises the history for the device stats endpoint.
type Totals struct {
	Messages        int `json:"messages"`
	Calls           int `json:"calls"`
	Codes           int `json:"codes"`
	Inbound         int `json:"inbound"`
	PendingCommands int `json:"pending_commands"`
}
