package hub

import (
	"slices"
	"sync"

	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Conn is the outbound half of a device connection. The session that
// created it owns it; the registry only holds a reference for lookup.
type Conn interface {
	// Send queues msg for delivery. It fails once the connection is gone
	// or its send buffer is full.
	Send(msg protocol.HubMessage) error

	// Close tears down the transport. It is safe to call more than once.
	Close() error
}

// Registry maps device ids to their single live connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	// lockMu guards locks. Entries live only while held or awaited.
	lockMu sync.Mutex
	locks  map[string]*deviceLock
}

type deviceLock struct {
	sync.Mutex
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		locks: make(map[string]*deviceLock),
	}
}

// LockDevice serialises connect and disconnect handling for one device id
// and returns the unlock function. Other ids are not blocked. Sessions hold
// it across their presence write and Register/Unregister so a closing
// session cannot mark offline a device that a newer session just brought
// online.
func (r *Registry) LockDevice(deviceID string) (unlock func()) {
	r.lockMu.Lock()
	l, ok := r.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		r.locks[deviceID] = l
	}
	l.refs++
	r.lockMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, deviceID)
		}
		r.lockMu.Unlock()
	}
}

// Register stores conn as the live connection for deviceID and returns the
// connection it replaced, if any. The caller must close the returned
// connection.
func (r *Registry) Register(deviceID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[deviceID]
	r.conns[deviceID] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// Unregister removes deviceID only while conn is still the registered
// connection. It reports whether the entry was removed.
func (r *Registry) Unregister(deviceID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[deviceID]; !ok || cur != conn {
		return false
	}
	delete(r.conns, deviceID)
	return true
}

// Lookup returns the live connection for deviceID.
func (r *Registry) Lookup(deviceID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[deviceID]
	return c, ok
}

// LookupOnline resolves a command target. With an explicit id it returns
// that device's connection; with an empty id it returns the only online
// device, ErrNoDeviceAvailable when none is online and ErrAmbiguousDevice
// when several are.
func (r *Registry) LookupOnline(deviceID string) (string, Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if deviceID != "" {
		c, ok := r.conns[deviceID]
		if !ok {
			return "", nil, ErrNoDeviceAvailable
		}
		return deviceID, c, nil
	}

	switch len(r.conns) {
	case 0:
		return "", nil, ErrNoDeviceAvailable
	case 1:
		for id, c := range r.conns {
			return id, c, nil
		}
	}
	return "", nil, ErrAmbiguousDevice
}

// OnlineDeviceIDs returns the ids of connected devices, sorted.
func (r *Registry) OnlineDeviceIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of connected devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
