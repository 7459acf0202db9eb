package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client envelope types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
	TypeEvent    = "event"
	TypePing     = "ping"
	TypePong     = "pong"
)

// Client request actions.
const (
	ActionSendMessage  = "sendMessage"
	ActionInitiateCall = "initiateCall"
	ActionHangupCall   = "hangupCall"
	ActionAnswerCall   = "answerCall"
	ActionExecuteCode  = "executeCode"
)

// Envelope is the frame exchanged with dashboard clients. Requests carry an
// ID that the matching response or error echoes.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Action    string          `json:"action,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Request is a client command.
type Request interface {
	Action() string
	serve(ctx context.Context, h RequestHandler) (string, error)
}

// RequestHandler serves every Request variant. Each method returns the
// command id the request created or acted on.
type RequestHandler interface {
	SendMessage(ctx context.Context, r SendMessageRequest) (string, error)
	InitiateCall(ctx context.Context, r InitiateCallRequest) (string, error)
	HangupCall(ctx context.Context, r HangupCallRequest) (string, error)
	AnswerCall(ctx context.Context, r AnswerCallRequest) (string, error)
	ExecuteCode(ctx context.Context, r ExecuteCodeRequest) (string, error)
}

// Serve calls the handler method for r's variant.
func Serve(ctx context.Context, r Request, h RequestHandler) (string, error) {
	return r.serve(ctx, h)
}

// SendMessageRequest asks for an SMS. DeviceID is optional when exactly one
// device is online.
type SendMessageRequest struct {
	Phone    string `json:"phone"`
	Body     string `json:"body"`
	DeviceID string `json:"deviceId,omitempty"`
}

// InitiateCallRequest asks for an outgoing call.
type InitiateCallRequest struct {
	Phone    string `json:"phone"`
	DeviceID string `json:"deviceId,omitempty"`
}

// HangupCallRequest ends a call.
type HangupCallRequest struct {
	CommandID string `json:"commandId"`
}

// AnswerCallRequest picks up a ringing call.
type AnswerCallRequest struct {
	CommandID string `json:"commandId"`
}

// ExecuteCodeRequest runs a USSD code.
type ExecuteCodeRequest struct {
	Code     string `json:"code"`
	DeviceID string `json:"deviceId,omitempty"`
}

func (SendMessageRequest) Action() string  { return ActionSendMessage }
func (InitiateCallRequest) Action() string { return ActionInitiateCall }
func (HangupCallRequest) Action() string   { return ActionHangupCall }
func (AnswerCallRequest) Action() string   { return ActionAnswerCall }
func (ExecuteCodeRequest) Action() string  { return ActionExecuteCode }

func (r SendMessageRequest) serve(ctx context.Context, h RequestHandler) (string, error) {
	return h.SendMessage(ctx, r)
}

func (r InitiateCallRequest) serve(ctx context.Context, h RequestHandler) (string, error) {
	return h.InitiateCall(ctx, r)
}

func (r HangupCallRequest) serve(ctx context.Context, h RequestHandler) (string, error) {
	return h.HangupCall(ctx, r)
}

func (r AnswerCallRequest) serve(ctx context.Context, h RequestHandler) (string, error) {
	return h.AnswerCall(ctx, r)
}

func (r ExecuteCodeRequest) serve(ctx context.Context, h RequestHandler) (string, error) {
	return h.ExecuteCode(ctx, r)
}

// DecodeRequest parses the payload of a request envelope.
func DecodeRequest(action string, payload json.RawMessage) (Request, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	var (
		r   Request
		err error
	)
	switch action {
	case ActionSendMessage:
		var v SendMessageRequest
		err = json.Unmarshal(payload, &v)
		r = v
	case ActionInitiateCall:
		var v InitiateCallRequest
		err = json.Unmarshal(payload, &v)
		r = v
	case ActionHangupCall:
		var v HangupCallRequest
		err = json.Unmarshal(payload, &v)
		r = v
	case ActionAnswerCall:
		var v AnswerCallRequest
		err = json.Unmarshal(payload, &v)
		r = v
	case ActionExecuteCode:
		var v ExecuteCodeRequest
		err = json.Unmarshal(payload, &v)
		r = v
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownType, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// CommandResponse is the payload answering a request.
type CommandResponse struct {
	CommandID string `json:"commandId"`
}

// ErrorPayload is the payload of an error envelope.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	CommandID string `json:"commandId,omitempty"`
}

// NewEventEnvelope wraps an event for a client.
func NewEventEnvelope(ev Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshalling %s event: %w", ev.EventType(), err)
	}
	return Envelope{
		Type:      TypeEvent,
		EventType: ev.EventType(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Payload:   payload,
	}, nil
}

// NewReply builds a response (or error, or pong) envelope for request id.
func NewReply(typ, id string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{
		Type:      typ,
		ID:        id,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshalling %s payload: %w", typ, err)
		}
		env.Payload = data
	}
	return env, nil
}
