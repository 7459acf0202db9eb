package hub

import (
	"context"
	"time"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/device"
)

// Store is the persistence port consumed by sessions and the router.
// Every method may fail with a storage fault.
type Store interface {
	// FindDeviceByToken returns device.ErrDeviceNotFound when no device
	// holds the token hash.
	FindDeviceByToken(ctx context.Context, tokenHash string) (*device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, d *device.Device) error

	CreatePendingCommand(ctx context.Context, c *command.Command) error

	// UpdatePendingCommandResult moves a pending command of deviceID to the
	// result's terminal state. It reports false when the command is missing,
	// already terminal or targeted at another device.
	UpdatePendingCommandResult(ctx context.Context, deviceID, id string, res command.Result, at time.Time) (bool, error)

	CreateCallRecord(ctx context.Context, c *command.Call) error

	// GetCallRecord returns command.ErrCallNotFound for unknown ids.
	GetCallRecord(ctx context.Context, id string) (*command.Call, error)

	// UpdateCallRecord writes c only if the stored call still matches prev.
	UpdateCallRecord(ctx context.Context, c *command.Call, prev command.Call) (bool, error)

	RecordInboundMessage(ctx context.Context, m *command.InboundMessage) error
}

// repoStore adapts the SQLite repositories to Store.
type repoStore struct {
	devices  device.Repository
	commands command.Repository
}

// NewStore returns a Store backed by the given repositories.
func NewStore(devices device.Repository, commands command.Repository) Store {
	return &repoStore{devices: devices, commands: commands}
}

func (s *repoStore) FindDeviceByToken(ctx context.Context, tokenHash string) (*device.Device, error) {
	return s.devices.GetByTokenHash(ctx, tokenHash)
}

func (s *repoStore) CreateDevice(ctx context.Context, d *device.Device) error {
	return s.devices.Create(ctx, d)
}

func (s *repoStore) UpdateDevice(ctx context.Context, d *device.Device) error {
	return s.devices.Update(ctx, d)
}

func (s *repoStore) CreatePendingCommand(ctx context.Context, c *command.Command) error {
	return s.commands.CreateCommand(ctx, c)
}

func (s *repoStore) UpdatePendingCommandResult(ctx context.Context, deviceID, id string, res command.Result, at time.Time) (bool, error) {
	return s.commands.CompleteCommand(ctx, &command.Command{
		ID:          id,
		DeviceID:    deviceID,
		State:       res.State(),
		Response:    res.Response,
		Error:       res.Error,
		CompletedAt: &at,
	})
}

func (s *repoStore) CreateCallRecord(ctx context.Context, c *command.Call) error {
	return s.commands.CreateCall(ctx, c)
}

func (s *repoStore) GetCallRecord(ctx context.Context, id string) (*command.Call, error) {
	return s.commands.GetCall(ctx, id)
}

func (s *repoStore) UpdateCallRecord(ctx context.Context, c *command.Call, prev command.Call) (bool, error) {
	return s.commands.UpdateCall(ctx, c, prev)
}

func (s *repoStore) RecordInboundMessage(ctx context.Context, m *command.InboundMessage) error {
	return s.commands.CreateInbound(ctx, m)
}
