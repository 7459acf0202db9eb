package hub

// Hub wires the registry, bus and router around one store and hands out
// sessions that share them.
type Hub struct {
	store     Store
	registry  *Registry
	bus       *Bus
	router    *Router
	responder *Responder
	creds     Credentials
	logger    Logger
}

// New creates a hub over store.
func New(store Store, creds Credentials) *Hub {
	registry := NewRegistry()
	bus := NewBus()
	router := NewRouter(store, registry, bus)
	return &Hub{
		store:     store,
		registry:  registry,
		bus:       bus,
		router:    router,
		responder: NewResponder(router),
		creds:     creds,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the hub and every session it creates.
func (h *Hub) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	h.logger = logger
	h.bus.SetLogger(logger)
	h.router.SetLogger(logger)
	h.responder.SetLogger(logger)
}

// Registry returns the device registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Bus returns the broadcast bus.
func (h *Hub) Bus() *Bus { return h.bus }

// Router returns the command router.
func (h *Hub) Router() *Router { return h.router }

// Responder answers request envelopes from transports that have no
// session, such as the MQTT request bridge.
func (h *Hub) Responder() *Responder { return h.responder }

// NewDeviceSession starts a session for a freshly accepted device
// connection.
func (h *Hub) NewDeviceSession(conn Conn) *DeviceSession {
	s := NewDeviceSession(conn, h.store, h.registry, h.bus, h.creds)
	s.SetLogger(h.logger)
	return s
}

// NewClientSession starts a session for a dashboard connection.
func (h *Hub) NewClientSession(buffer int) *ClientSession {
	c := NewClientSession(h.router, h.bus, buffer)
	c.SetLogger(h.logger)
	return c
}
