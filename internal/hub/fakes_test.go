package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/device"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

var (
	errConnClosed = errors.New("connection closed")
	errDiskFull   = errors.New("disk full")
)

// fakeConn records outbound frames.
type fakeConn struct {
	mu      sync.Mutex
	sent    []protocol.HubMessage
	sendErr error
	closes  int
}

func (c *fakeConn) Send(m protocol.HubMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return errConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) Sent() []protocol.HubMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.HubMessage(nil), c.sent...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// memStore is an in-memory Store with the same conditional update rules as
// the SQLite repositories.
type memStore struct {
	mu       sync.Mutex
	devices  map[string]device.Device
	commands map[string]command.Command
	calls    map[string]command.Call
	inbound  []command.InboundMessage

	// fail makes every call return errDiskFull.
	fail bool

	// onUpdateDevice, when set, runs before UpdateDevice takes the store
	// lock.
	onUpdateDevice func(d device.Device)
}

func newMemStore() *memStore {
	return &memStore{
		devices:  make(map[string]device.Device),
		commands: make(map[string]command.Command),
		calls:    make(map[string]command.Call),
	}
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *memStore) FindDeviceByToken(_ context.Context, tokenHash string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errDiskFull
	}
	for _, d := range s.devices {
		if d.TokenHash == tokenHash {
			return &d, nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (s *memStore) CreateDevice(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	if _, ok := s.devices[d.ID]; ok {
		return device.ErrDeviceExists
	}
	s.devices[d.ID] = *d
	return nil
}

func (s *memStore) UpdateDevice(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	hook := s.onUpdateDevice
	s.mu.Unlock()
	if hook != nil {
		hook(*d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	if _, ok := s.devices[d.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	s.devices[d.ID] = *d
	return nil
}

func (s *memStore) CreatePendingCommand(_ context.Context, c *command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	s.commands[c.ID] = *c
	return nil
}

func (s *memStore) UpdatePendingCommandResult(_ context.Context, deviceID, id string, res command.Result, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errDiskFull
	}
	c, ok := s.commands[id]
	if !ok || c.DeviceID != deviceID || c.State != command.StatePending {
		return false, nil
	}
	c.State = res.State()
	c.Error = res.Error
	c.Response = res.Response
	c.CompletedAt = &at
	s.commands[id] = c
	return true, nil
}

func (s *memStore) CreateCallRecord(_ context.Context, c *command.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	s.calls[c.ID] = *c
	return nil
}

func (s *memStore) GetCallRecord(_ context.Context, id string) (*command.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errDiskFull
	}
	c, ok := s.calls[id]
	if !ok {
		return nil, command.ErrCallNotFound
	}
	return &c, nil
}

func (s *memStore) UpdateCallRecord(_ context.Context, c *command.Call, prev command.Call) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errDiskFull
	}
	cur, ok := s.calls[c.ID]
	if !ok || cur.Status != prev.Status || !sameDuration(cur.Duration, prev.Duration) {
		return false, nil
	}
	s.calls[c.ID] = *c
	return true, nil
}

func (s *memStore) RecordInboundMessage(_ context.Context, m *command.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDiskFull
	}
	s.inbound = append(s.inbound, *m)
	return nil
}

func (s *memStore) deviceByID(id string) (device.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	return d, ok
}

func (s *memStore) commandByID(id string) (command.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	return c, ok
}

func (s *memStore) callByID(id string) (command.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	return c, ok
}

func (s *memStore) counts() (devices, commands, calls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices), len(s.commands), len(s.calls)
}

func sameDuration(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var testCreds = Credentials{
	Pepper:           "test-pepper-0123456789",
	ProvisioningKeys: []string{"T1", "T2"},
	DefaultName:      "Test Gateway",
}

// fixture bundles the shared hub components for a test.
type fixture struct {
	store    *memStore
	registry *Registry
	bus      *Bus
	router   *Router
}

func newFixture() *fixture {
	store := newMemStore()
	registry := NewRegistry()
	bus := NewBus()
	return &fixture{
		store:    store,
		registry: registry,
		bus:      bus,
		router:   NewRouter(store, registry, bus),
	}
}

// connect authenticates a new device session with token.
func (f *fixture) connect(t *testing.T, token string) (*DeviceSession, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := NewDeviceSession(conn, f.store, f.registry, f.bus, testCreds)
	if err := s.Handle(context.Background(), protocol.Connect{Token: token}); err != nil {
		t.Fatalf("connect(%q) error = %v", token, err)
	}
	return s, conn
}

// drain returns every event currently buffered on sub.
func drain(sub *Subscription) []protocol.Event {
	var events []protocol.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// onlyEvent asserts exactly one event is buffered and returns it.
func onlyEvent(t *testing.T, sub *Subscription) protocol.Event {
	t.Helper()
	events := drain(sub)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %#v", len(events), events)
	}
	return events[0]
}
