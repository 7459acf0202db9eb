package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Request limits.
const (
	maxPhoneLength = 32
	maxBodyLength  = 1600 // ten concatenated SMS parts
	maxCodeLength  = 64
)

// deliveryFailedReason is recorded on commands that never reached the
// device.
const deliveryFailedReason = "delivery failed: device connection unavailable"

// Router turns client requests into pending commands and device frames.
// It implements protocol.RequestHandler and never waits for a device
// result.
type Router struct {
	store    Store
	registry *Registry
	bus      *Bus
	logger   Logger
	now      func() time.Time
}

// NewRouter creates a router.
func NewRouter(store Store, registry *Registry, bus *Bus) *Router {
	return &Router{
		store:    store,
		registry: registry,
		bus:      bus,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

var _ protocol.RequestHandler = (*Router)(nil)

// SendMessage queues an SMS on the target device.
func (r *Router) SendMessage(ctx context.Context, req protocol.SendMessageRequest) (string, error) {
	phone, err := validatePhone(req.Phone)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Body) == "" {
		return "", fmt.Errorf("%w: body is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Body) > maxBodyLength {
		return "", fmt.Errorf("%w: body exceeds %d characters", ErrInvalidRequest, maxBodyLength)
	}

	deviceID, conn, err := r.registry.LookupOnline(req.DeviceID)
	if err != nil {
		return "", err
	}

	cmd := command.NewMessage(deviceID, phone, req.Body, r.now())
	if err := r.store.CreatePendingCommand(ctx, cmd); err != nil {
		return "", fmt.Errorf("recording message: %w", err)
	}

	msg := protocol.SendMessage{CommandID: cmd.ID, Phone: phone, Body: req.Body}
	if err := conn.Send(msg); err != nil {
		r.logger.Warn("message delivery failed", "command_id", cmd.ID, "device_id", deviceID, "error", err)
		r.failCommand(ctx, cmd)
		r.bus.Publish(protocol.MessageResultEvent{CommandID: cmd.ID, Success: false, Error: deliveryFailedReason})
		return cmd.ID, ErrDeliveryFailed
	}

	r.logger.Info("message queued", "command_id", cmd.ID, "device_id", deviceID)
	return cmd.ID, nil
}

// ExecuteCode queues a USSD code on the target device.
func (r *Router) ExecuteCode(ctx context.Context, req protocol.ExecuteCodeRequest) (string, error) {
	code, err := validateCode(req.Code)
	if err != nil {
		return "", err
	}

	deviceID, conn, err := r.registry.LookupOnline(req.DeviceID)
	if err != nil {
		return "", err
	}

	cmd := command.NewCode(deviceID, code, r.now())
	if err := r.store.CreatePendingCommand(ctx, cmd); err != nil {
		return "", fmt.Errorf("recording code: %w", err)
	}

	if err := conn.Send(protocol.ExecuteCode{CommandID: cmd.ID, Code: code}); err != nil {
		r.logger.Warn("code delivery failed", "command_id", cmd.ID, "device_id", deviceID, "error", err)
		r.failCommand(ctx, cmd)
		r.bus.Publish(protocol.CodeResultEvent{CommandID: cmd.ID, Response: deliveryFailedReason, Success: false})
		return cmd.ID, ErrDeliveryFailed
	}

	r.logger.Info("code queued", "command_id", cmd.ID, "device_id", deviceID)
	return cmd.ID, nil
}

// InitiateCall places an outgoing call from the target device.
func (r *Router) InitiateCall(ctx context.Context, req protocol.InitiateCallRequest) (string, error) {
	phone, err := validatePhone(req.Phone)
	if err != nil {
		return "", err
	}

	deviceID, conn, err := r.registry.LookupOnline(req.DeviceID)
	if err != nil {
		return "", err
	}

	call := command.NewOutgoingCall(deviceID, phone, r.now())
	if err := r.store.CreateCallRecord(ctx, call); err != nil {
		return "", fmt.Errorf("recording call: %w", err)
	}

	if err := conn.Send(protocol.InitiateCall{CommandID: call.ID, Phone: phone}); err != nil {
		r.logger.Warn("call delivery failed", "call_id", call.ID, "device_id", deviceID, "error", err)
		prev := *call
		if changed, _ := call.Advance(command.CallFailed, nil, r.now()); changed {
			r.writeCall(ctx, call, prev)
		}
		return call.ID, ErrDeliveryFailed
	}

	r.logger.Info("call initiated", "call_id", call.ID, "device_id", deviceID)
	return call.ID, nil
}

// HangupCall ends a call. The call is marked ended if it was still in
// progress, even when its device is gone, and call:hangup is sent to the
// device whenever it is connected.
func (r *Router) HangupCall(ctx context.Context, req protocol.HangupCallRequest) (string, error) {
	call, err := r.loadCall(ctx, req.CommandID)
	if err != nil {
		return "", err
	}

	prev := *call
	if call.Hangup(r.now()) {
		r.writeCall(ctx, call, prev)
	}

	_, conn, err := r.registry.LookupOnline(call.DeviceID)
	if err != nil {
		return call.ID, err
	}
	if err := conn.Send(protocol.HangupCall{CommandID: call.ID}); err != nil {
		r.logger.Warn("hangup delivery failed", "call_id", call.ID, "device_id", call.DeviceID, "error", err)
		return call.ID, ErrDeliveryFailed
	}
	return call.ID, nil
}

// AnswerCall asks the call's device to pick up. The call record moves
// when the device reports answered.
func (r *Router) AnswerCall(ctx context.Context, req protocol.AnswerCallRequest) (string, error) {
	call, err := r.loadCall(ctx, req.CommandID)
	if err != nil {
		return "", err
	}
	if call.Status.Terminal() {
		return "", fmt.Errorf("%w: call %s is %s", ErrInvalidRequest, call.ID, call.Status)
	}
	_, conn, err := r.registry.LookupOnline(call.DeviceID)
	if err != nil {
		return "", err
	}

	if err := conn.Send(protocol.AnswerCall{CommandID: call.ID}); err != nil {
		r.logger.Warn("answer delivery failed", "call_id", call.ID, "device_id", call.DeviceID, "error", err)
		return call.ID, ErrDeliveryFailed
	}
	return call.ID, nil
}

// loadCall fetches the call named by a client request.
func (r *Router) loadCall(ctx context.Context, id string) (*command.Call, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: commandId is required", ErrInvalidRequest)
	}

	call, err := r.store.GetCallRecord(ctx, id)
	if errors.Is(err, command.ErrCallNotFound) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading call: %w", err)
	}
	return call, nil
}

// failCommand marks an undelivered command failed.
func (r *Router) failCommand(ctx context.Context, cmd *command.Command) {
	res := command.Result{Success: false, Error: deliveryFailedReason}
	if _, err := r.store.UpdatePendingCommandResult(context.WithoutCancel(ctx), cmd.DeviceID, cmd.ID, res, r.now()); err != nil {
		r.logger.Error("marking command failed", "command_id", cmd.ID, "error", err)
	}
}

// writeCall persists a hub-side call transition and publishes it.
func (r *Router) writeCall(ctx context.Context, call *command.Call, prev command.Call) {
	applied, err := r.store.UpdateCallRecord(context.WithoutCancel(ctx), call, prev)
	if err != nil {
		r.logger.Error("updating call", "call_id", call.ID, "error", err)
		return
	}
	if !applied {
		r.logger.Debug("call changed concurrently, skipping update", "call_id", call.ID)
		return
	}
	r.bus.Publish(protocol.CallStatusEvent{
		CommandID: call.ID,
		Status:    string(call.Status),
		Duration:  call.Duration,
	})
}

func validatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: phone is required", ErrInvalidRequest)
	}
	if len(phone) > maxPhoneLength {
		return "", fmt.Errorf("%w: phone exceeds %d characters", ErrInvalidRequest, maxPhoneLength)
	}
	for i, c := range phone {
		switch {
		case c >= '0' && c <= '9', c == ' ', c == '-', c == '(', c == ')':
		case c == '+' && i == 0:
		default:
			return "", fmt.Errorf("%w: phone contains %q", ErrInvalidRequest, c)
		}
	}
	return phone, nil
}

func validateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	if len(code) > maxCodeLength {
		return "", fmt.Errorf("%w: code exceeds %d characters", ErrInvalidRequest, maxCodeLength)
	}
	for _, c := range code {
		if (c < '0' || c > '9') && c != '*' && c != '#' && c != '+' {
			return "", fmt.Errorf("%w: code contains %q", ErrInvalidRequest, c)
		}
	}
	return code, nil
}
