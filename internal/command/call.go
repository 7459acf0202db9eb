package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction of a call relative to the device.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// CallStatus is the progress of a call.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallEnded     CallStatus = "ended"
	CallFailed    CallStatus = "failed"
)

// callRank orders the forward path. failed is handled separately.
var callRank = map[CallStatus]int{
	CallInitiated: 1,
	CallRinging:   2,
	CallAnswered:  3,
	CallEnded:     4,
}

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool {
	_, ok := callRank[s]
	return ok || s == CallFailed
}

// Terminal reports whether the call is over.
func (s CallStatus) Terminal() bool {
	return s == CallEnded || s == CallFailed
}

// Call is the lifecycle record of a place_call command. Its ID is the
// command id the device echoes in call:status.
type Call struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	Direction Direction  `json:"direction"`
	Phone     string     `json:"phone"`
	Status    CallStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  *int       `json:"duration,omitempty"` // seconds
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewOutgoingCall builds a call in the initiated state.
func NewOutgoingCall(deviceID, phone string, now time.Time) *Call {
	return &Call{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Direction: DirectionOutgoing,
		Phone:     phone,
		Status:    CallInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance applies a reported status and reports whether anything changed.
//
// Statuses move forward only: initiated, ringing, answered, ended. Steps may
// be skipped, failed is reachable from any non-terminal status, and nothing
// moves a terminal call except one late duration: an ended call without a
// duration accepts a single ended{duration}.
func (c *Call) Advance(status CallStatus, duration *int, now time.Time) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if duration != nil && *duration < 0 {
		return false, fmt.Errorf("%w: negative duration %d", ErrInvalidCommand, *duration)
	}

	if c.Status.Terminal() {
		if c.Status == CallEnded && status == CallEnded && c.Duration == nil && duration != nil {
			d := *duration
			c.Duration = &d
			c.UpdatedAt = now
			return true, nil
		}
		return false, nil
	}

	if status == CallFailed {
		c.Status = CallFailed
		c.EndedAt = &now
		c.UpdatedAt = now
		return true, nil
	}

	if callRank[status] <= callRank[c.Status] {
		return false, nil
	}

	c.Status = status
	switch status {
	case CallAnswered:
		c.StartedAt = &now
	case CallEnded:
		c.EndedAt = &now
		if duration != nil {
			d := *duration
			c.Duration = &d
		}
	}
	c.UpdatedAt = now
	return true, nil
}

// Hangup ends a non-terminal call from the hub side. It reports false when
// the call was already over.
func (c *Call) Hangup(now time.Time) bool {
	if c.Status.Terminal() {
		return false
	}
	c.Status = CallEnded
	c.EndedAt = &now
	c.UpdatedAt = now
	return true
}
