package protocol

import (
	"encoding/json"
	"fmt"
)

// Hub to device message types.
const (
	TypeSendMessage  = "message:send"
	TypeInitiateCall = "call:initiate"
	TypeHangupCall   = "call:hangup"
	TypeAnswerCall   = "call:answer"
	TypeExecuteCode  = "code:execute"
)

// HubMessage is a frame sent to a device.
type HubMessage interface {
	Type() string

	// CorrelationID returns the command id the device will echo back.
	CorrelationID() string

	hubMessage()
}

// SendMessage asks the device to send an SMS.
type SendMessage struct {
	CommandID string `json:"commandId"`
	Phone     string `json:"phone"`
	Body      string `json:"body"`
}

// InitiateCall asks the device to dial.
type InitiateCall struct {
	CommandID string `json:"commandId"`
	Phone     string `json:"phone"`
}

// HangupCall asks the device to end a call.
type HangupCall struct {
	CommandID string `json:"commandId"`
}

// AnswerCall asks the device to pick up a ringing call.
type AnswerCall struct {
	CommandID string `json:"commandId"`
}

// ExecuteCode asks the device to run a USSD code such as *123#.
type ExecuteCode struct {
	CommandID string `json:"commandId"`
	Code      string `json:"code"`
}

func (SendMessage) Type() string  { return TypeSendMessage }
func (InitiateCall) Type() string { return TypeInitiateCall }
func (HangupCall) Type() string   { return TypeHangupCall }
func (AnswerCall) Type() string   { return TypeAnswerCall }
func (ExecuteCode) Type() string  { return TypeExecuteCode }

func (m SendMessage) CorrelationID() string  { return m.CommandID }
func (m InitiateCall) CorrelationID() string { return m.CommandID }
func (m HangupCall) CorrelationID() string   { return m.CommandID }
func (m AnswerCall) CorrelationID() string   { return m.CommandID }
func (m ExecuteCode) CorrelationID() string  { return m.CommandID }

func (SendMessage) hubMessage()  {}
func (InitiateCall) hubMessage() {}
func (HangupCall) hubMessage()   {}
func (AnswerCall) hubMessage()   {}
func (ExecuteCode) hubMessage()  {}

// EncodeHubMessage renders m as a JSON frame with its "type".
func EncodeHubMessage(m HubMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil hub message", ErrMalformed)
	}
	return encodeTagged(m.Type(), m)
}

// DecodeHubMessage parses a hub frame. Used by device simulators and tests.
func DecodeHubMessage(data []byte) (HubMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		m   HubMessage
		err error
	)
	switch head.Type {
	case TypeSendMessage:
		var v SendMessage
		err = json.Unmarshal(data, &v)
		m = v
	case TypeInitiateCall:
		var v InitiateCall
		err = json.Unmarshal(data, &v)
		m = v
	case TypeHangupCall:
		var v HangupCall
		err = json.Unmarshal(data, &v)
		m = v
	case TypeAnswerCall:
		var v AnswerCall
		err = json.Unmarshal(data, &v)
		m = v
	case TypeExecuteCode:
		var v ExecuteCode
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
