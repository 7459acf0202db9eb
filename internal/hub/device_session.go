package hub

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cellgate-core/internal/auth"
	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/device"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// maxCallUpdateAttempts bounds the compare-and-set retries when a device
// report races a hub-side call update.
const maxCallUpdateAttempts = 3

// fallbackDeviceName names provisioned devices when no default is set.
const fallbackDeviceName = "GSM Gateway"

// SessionState is the lifecycle position of a device session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateDisconnected
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Credentials decides which device tokens are accepted.
type Credentials struct {
	// Pepper is mixed into every token hash.
	Pepper string

	// ProvisioningKeys are tokens that may register a new device on first
	// connect. Known devices authenticate by their stored hash.
	ProvisioningKeys []string

	// DefaultName is given to newly provisioned devices.
	DefaultName string
}

func (c Credentials) hash(token string) string {
	return auth.HashDeviceToken(token, c.Pepper)
}

func (c Credentials) deviceName() string {
	if c.DefaultName == "" {
		return fallbackDeviceName
	}
	return c.DefaultName
}

func (c Credentials) provisionable(token string) bool {
	for _, k := range c.ProvisioningKeys {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// DeviceSession drives one device connection from connect to close.
// Frames are handled one at a time in arrival order.
type DeviceSession struct {
	mu     sync.Mutex
	conn   Conn
	state  SessionState
	device *device.Device

	store    Store
	registry *Registry
	bus      *Bus
	creds    Credentials
	logger   Logger
	now      func() time.Time
}

// NewDeviceSession creates an unauthenticated session for conn.
func NewDeviceSession(conn Conn, store Store, registry *Registry, bus *Bus, creds Credentials) *DeviceSession {
	return &DeviceSession{
		conn:     conn,
		state:    StateUnauthenticated,
		store:    store,
		registry: registry,
		bus:      bus,
		creds:    creds,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the session.
func (s *DeviceSession) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// State returns the current lifecycle state.
func (s *DeviceSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the authenticated device id, or "" before connect.
func (s *DeviceSession) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return ""
	}
	return s.device.ID
}

// HandleFrame decodes and handles one raw frame. Before authentication
// an undecodable frame fails authentication.
func (s *DeviceSession) HandleFrame(ctx context.Context, data []byte) error {
	msg, err := protocol.DecodeDeviceMessage(data)
	if err != nil {
		if s.State() == StateUnauthenticated {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return err
	}
	return s.Handle(ctx, msg)
}

// Handle processes one device message. ErrAuthFailed and ErrSessionClosed
// mean the transport must close. Any other error only aborts this message.
func (s *DeviceSession) Handle(ctx context.Context, msg protocol.DeviceMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateUnauthenticated:
		if _, ok := msg.(protocol.Connect); !ok {
			return fmt.Errorf("%w: expected %s, got %s", ErrAuthFailed, protocol.TypeConnect, msg.Type())
		}
	}
	return protocol.Dispatch(ctx, msg, (*sessionHandler)(s))
}

// Close ends the session after the transport closed. A session that was
// superseded by a newer connection leaves the device online.
func (s *DeviceSession) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return
	}
	wasAuthenticated := s.state == StateAuthenticated
	s.state = StateDisconnected
	if !wasAuthenticated {
		return
	}

	d := s.device
	unlock := s.registry.LockDevice(d.ID)
	defer unlock()

	if !s.registry.Unregister(d.ID, s.conn) {
		s.logger.Debug("superseded session closed", "device_id", d.ID)
		return
	}

	d.MarkOffline(s.now())
	if err := s.store.UpdateDevice(context.WithoutCancel(ctx), d); err != nil {
		s.logger.Error("marking device offline", "device_id", d.ID, "error", err)
	}
	s.bus.Publish(protocol.PresenceEvent{DeviceID: d.ID, Online: false})
	s.logger.Info("device disconnected", "device_id", d.ID)
}

// sessionHandler is the protocol.DeviceHandler view of a session. Its
// methods run with the session lock held.
type sessionHandler DeviceSession

var _ protocol.DeviceHandler = (*sessionHandler)(nil)

func (h *sessionHandler) HandleConnect(ctx context.Context, m protocol.Connect) error {
	s := (*DeviceSession)(h)
	if s.state == StateAuthenticated {
		s.logger.Warn("ignoring repeated connect", "device_id", s.device.ID)
		return nil
	}
	if m.Token == "" {
		return fmt.Errorf("%w: empty token", ErrAuthFailed)
	}

	ctx = context.WithoutCancel(ctx)
	tokenHash := s.creds.hash(m.Token)

	d, err := s.store.FindDeviceByToken(ctx, tokenHash)
	isNew := false
	switch {
	case err == nil:
	case errors.Is(err, device.ErrDeviceNotFound):
		if !s.creds.provisionable(m.Token) {
			return fmt.Errorf("%w: unknown token", ErrAuthFailed)
		}
		now := s.now()
		d = &device.Device{
			ID:        device.NewID(),
			Name:      s.creds.deviceName(),
			TokenHash: tokenHash,
			CreatedAt: now,
			UpdatedAt: now,
		}
		isNew = true
	default:
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	if m.PhoneNumber != "" {
		d.PhoneNumber = m.PhoneNumber
	}

	unlock := s.registry.LockDevice(d.ID)
	defer unlock()
	d.MarkOnline(s.now())

	if isNew {
		err = s.store.CreateDevice(ctx, d)
	} else {
		err = s.store.UpdateDevice(ctx, d)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	if prev := s.registry.Register(d.ID, s.conn); prev != nil {
		s.logger.Info("superseding previous connection", "device_id", d.ID)
		if err := prev.Close(); err != nil {
			s.logger.Debug("closing superseded connection", "device_id", d.ID, "error", err)
		}
	}

	s.device = d
	s.state = StateAuthenticated
	s.bus.Publish(protocol.PresenceEvent{DeviceID: d.ID, Online: true, Signal: d.Signal})
	s.logger.Info("device connected", "device_id", d.ID, "provisioned", isNew)
	return nil
}

func (h *sessionHandler) HandleHeartbeat(ctx context.Context, m protocol.Heartbeat) error {
	s := (*DeviceSession)(h)
	d := s.device

	if err := device.ValidateSignal(m.Signal); err != nil {
		s.logger.Debug("heartbeat signal out of range", "device_id", d.ID, "signal", m.Signal)
	}
	d.RecordHeartbeat(s.now(), m.Signal)

	if err := s.store.UpdateDevice(context.WithoutCancel(ctx), d); err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	s.bus.Publish(protocol.PresenceEvent{DeviceID: d.ID, Online: true, Signal: d.Signal})
	return nil
}

func (h *sessionHandler) HandleMessageResult(ctx context.Context, m protocol.MessageResult) error {
	s := (*DeviceSession)(h)
	res := command.Result{Success: m.Success, Error: m.Error}
	applied, err := s.completeCommand(ctx, m.CommandID, res)
	if err != nil || !applied {
		return err
	}
	s.bus.Publish(protocol.MessageResultEvent{CommandID: m.CommandID, Success: m.Success, Error: m.Error})
	return nil
}

func (h *sessionHandler) HandleCodeResult(ctx context.Context, m protocol.CodeResult) error {
	s := (*DeviceSession)(h)
	res := command.Result{Success: m.Success, Response: m.Response}
	applied, err := s.completeCommand(ctx, m.CommandID, res)
	if err != nil || !applied {
		return err
	}
	s.bus.Publish(protocol.CodeResultEvent{CommandID: m.CommandID, Response: m.Response, Success: m.Success})
	return nil
}

func (h *sessionHandler) HandleMessageReceived(ctx context.Context, m protocol.MessageReceived) error {
	s := (*DeviceSession)(h)
	if m.Timestamp.Invalid != "" {
		s.logger.Warn("unreadable message timestamp, using receive time",
			"device_id", s.device.ID, "timestamp", m.Timestamp.Invalid)
	}
	msg := command.NewInboundMessage(s.device.ID, m.From, m.Body, m.Timestamp.Time, s.now())

	if err := s.store.RecordInboundMessage(context.WithoutCancel(ctx), msg); err != nil {
		return fmt.Errorf("recording inbound message: %w", err)
	}
	s.bus.Publish(protocol.MessageReceivedEvent{
		DeviceID:  msg.DeviceID,
		From:      msg.From,
		Body:      msg.Body,
		Timestamp: msg.ReceivedAt,
	})
	return nil
}

func (h *sessionHandler) HandleCallStatus(ctx context.Context, m protocol.CallStatus) error {
	s := (*DeviceSession)(h)
	ctx = context.WithoutCancel(ctx)
	status := command.CallStatus(m.Status)

	for attempt := 0; attempt < maxCallUpdateAttempts; attempt++ {
		call, err := s.store.GetCallRecord(ctx, m.CommandID)
		if errors.Is(err, command.ErrCallNotFound) {
			s.logger.Debug("dropping status for unknown call", "command_id", m.CommandID, "status", m.Status)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading call: %w", err)
		}
		if call.DeviceID != s.device.ID {
			s.logger.Warn("dropping status for another device's call",
				"command_id", m.CommandID, "device_id", s.device.ID, "owner", call.DeviceID)
			return nil
		}

		prev := *call
		changed, err := call.Advance(status, m.Duration, s.now())
		if err != nil {
			s.logger.Warn("invalid call status", "command_id", m.CommandID, "status", m.Status, "error", err)
			return nil
		}
		if !changed {
			s.logger.Debug("dropping stale call status", "command_id", m.CommandID, "status", m.Status, "current", prev.Status)
			return nil
		}

		applied, err := s.store.UpdateCallRecord(ctx, call, prev)
		if err != nil {
			return fmt.Errorf("updating call: %w", err)
		}
		if applied {
			s.bus.Publish(protocol.CallStatusEvent{
				CommandID: call.ID,
				Status:    string(call.Status),
				Duration:  call.Duration,
			})
			return nil
		}
	}

	s.logger.Warn("call kept changing, dropping status", "command_id", m.CommandID, "status", m.Status)
	return nil
}

// completeCommand applies a device result. Missing, already terminal and
// foreign commands are logged and reported as not applied.
func (s *DeviceSession) completeCommand(ctx context.Context, id string, res command.Result) (bool, error) {
	applied, err := s.store.UpdatePendingCommandResult(context.WithoutCancel(ctx), s.device.ID, id, res, s.now())
	if err != nil {
		return false, fmt.Errorf("recording result: %w", err)
	}
	if !applied {
		s.logger.Debug("dropping stale result", "command_id", id, "device_id", s.device.ID)
	}
	return applied, nil
}
