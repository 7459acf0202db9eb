package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Device to hub message types.
const (
	TypeConnect         = "device:connect"
	TypeHeartbeat       = "device:heartbeat"
	TypeMessageResult   = "message:result"
	TypeMessageReceived = "message:received"
	TypeCallStatus      = "call:status"
	TypeCodeResult      = "code:result"

	legacyTypeSMSResult   = "sms:result"
	legacyTypeSMSReceived = "sms:received"
	legacyTypeUSSDResult  = "ussd:result"
)

// DeviceMessage is a frame received from a device.
type DeviceMessage interface {
	// Type returns the canonical wire type.
	Type() string

	accept(ctx context.Context, h DeviceHandler) error
}

// DeviceHandler handles every DeviceMessage variant.
type DeviceHandler interface {
	HandleConnect(ctx context.Context, m Connect) error
	HandleHeartbeat(ctx context.Context, m Heartbeat) error
	HandleMessageResult(ctx context.Context, m MessageResult) error
	HandleMessageReceived(ctx context.Context, m MessageReceived) error
	HandleCallStatus(ctx context.Context, m CallStatus) error
	HandleCodeResult(ctx context.Context, m CodeResult) error
}

// Dispatch calls the handler method for msg's variant.
func Dispatch(ctx context.Context, msg DeviceMessage, h DeviceHandler) error {
	return msg.accept(ctx, h)
}

// Connect authenticates a device. It must be the first frame.
type Connect struct {
	Token       string `json:"token"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Heartbeat reports liveness and signal quality (0-31).
type Heartbeat struct {
	Signal int `json:"signal"`
}

// MessageResult reports the outcome of a message:send.
type MessageResult struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// MessageReceived reports an SMS received by the device.
type MessageReceived struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp Timestamp `json:"timestamp"`
}

// CallStatus reports call progress. Status is one of ringing, answered,
// ended or failed; Duration (seconds) accompanies ended.
type CallStatus struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Duration  *int   `json:"duration,omitempty"`
}

// CodeResult reports the network's reply to a code:execute.
type CodeResult struct {
	CommandID string `json:"commandId"`
	Response  string `json:"response"`
	Success   bool   `json:"success"`
}

func (Connect) Type() string         { return TypeConnect }
func (Heartbeat) Type() string       { return TypeHeartbeat }
func (MessageResult) Type() string   { return TypeMessageResult }
func (MessageReceived) Type() string { return TypeMessageReceived }
func (CallStatus) Type() string      { return TypeCallStatus }
func (CodeResult) Type() string      { return TypeCodeResult }

func (m Connect) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleConnect(ctx, m)
}

func (m Heartbeat) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleHeartbeat(ctx, m)
}

func (m MessageResult) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleMessageResult(ctx, m)
}

func (m MessageReceived) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleMessageReceived(ctx, m)
}

func (m CallStatus) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleCallStatus(ctx, m)
}

func (m CodeResult) accept(ctx context.Context, h DeviceHandler) error {
	return h.HandleCodeResult(ctx, m)
}

// deviceFrame is the superset of fields any device frame may carry,
// including the legacy spellings.
type deviceFrame struct {
	Type string `json:"type"`

	Token       string `json:"token"`
	APIKey      string `json:"apiKey"`
	PhoneNumber string `json:"phoneNumber"`

	Signal *int `json:"signal"`

	CommandID string `json:"commandId"`
	ID        string `json:"id"`
	Success   *bool  `json:"success"`
	Error     string `json:"error"`

	From      string    `json:"from"`
	Body      string    `json:"body"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`

	Status   string `json:"status"`
	Duration *int   `json:"duration"`
	Response string `json:"response"`
}

func (f *deviceFrame) commandID() string {
	if f.CommandID != "" {
		return f.CommandID
	}
	return f.ID
}

// DecodeDeviceMessage parses one device frame.
func DecodeDeviceMessage(data []byte) (DeviceMessage, error) {
	var f deviceFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case TypeConnect:
		token := f.Token
		if token == "" {
			token = f.APIKey
		}
		if token == "" {
			return nil, fmt.Errorf("%w: %s without token", ErrMalformed, f.Type)
		}
		return Connect{Token: token, PhoneNumber: strings.TrimSpace(f.PhoneNumber)}, nil

	case TypeHeartbeat:
		if f.Signal == nil {
			return nil, fmt.Errorf("%w: %s without signal", ErrMalformed, f.Type)
		}
		return Heartbeat{Signal: *f.Signal}, nil

	case TypeMessageResult, legacyTypeSMSResult:
		if err := f.requireResult(); err != nil {
			return nil, err
		}
		return MessageResult{CommandID: f.commandID(), Success: *f.Success, Error: f.Error}, nil

	case TypeMessageReceived, legacyTypeSMSReceived:
		body := f.Body
		if body == "" {
			body = f.Message
		}
		if f.From == "" {
			return nil, fmt.Errorf("%w: %s without sender", ErrMalformed, f.Type)
		}
		return MessageReceived{From: f.From, Body: body, Timestamp: f.Timestamp}, nil

	case TypeCallStatus:
		if f.commandID() == "" || f.Status == "" {
			return nil, fmt.Errorf("%w: %s needs commandId and status", ErrMalformed, f.Type)
		}
		return CallStatus{CommandID: f.commandID(), Status: f.Status, Duration: f.Duration}, nil

	case TypeCodeResult, legacyTypeUSSDResult:
		if err := f.requireResult(); err != nil {
			return nil, err
		}
		return CodeResult{CommandID: f.commandID(), Response: f.Response, Success: *f.Success}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

func (f *deviceFrame) requireResult() error {
	if f.commandID() == "" {
		return fmt.Errorf("%w: %s without commandId", ErrMalformed, f.Type)
	}
	if f.Success == nil {
		return fmt.Errorf("%w: %s without success", ErrMalformed, f.Type)
	}
	return nil
}

// EncodeDeviceMessage renders a device frame in canonical form. Used by
// device simulators and tests.
func EncodeDeviceMessage(m DeviceMessage) ([]byte, error) {
	return encodeTagged(m.Type(), m)
}

// encodeTagged marshals v and adds the "type" discriminator.
func encodeTagged(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(typ) //nolint:errcheck // Marshalling a string cannot fail
	fields["type"] = tag
	return json.Marshal(fields)
}
