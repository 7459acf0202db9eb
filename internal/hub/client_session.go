package hub

import (
	"context"
	"sync"

	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// ClientSession is one dashboard connection: requests go to the router and
// bus events come back on Events until Close.
type ClientSession struct {
	handler   protocol.RequestHandler
	responder *Responder
	bus       *Bus
	sub       *Subscription

	mu     sync.Mutex
	closed bool
}

// NewClientSession subscribes a new session to bus with the given event
// buffer.
func NewClientSession(handler protocol.RequestHandler, bus *Bus, buffer int) *ClientSession {
	return &ClientSession{
		handler:   handler,
		responder: NewResponder(handler),
		bus:       bus,
		sub:       bus.Subscribe(buffer),
	}
}

// SetLogger sets the logger for the session.
func (c *ClientSession) SetLogger(logger Logger) {
	c.responder.SetLogger(logger)
}

// Events returns the session's event stream. It is closed by Close.
func (c *ClientSession) Events() <-chan protocol.Event {
	return c.sub.Events()
}

// Dropped returns how many events this session missed to backpressure.
func (c *ClientSession) Dropped() uint64 {
	return c.sub.Dropped()
}

// Handle forwards req to the router and returns the command id.
func (c *ClientSession) Handle(ctx context.Context, req protocol.Request) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}
	return protocol.Serve(ctx, req, c.handler)
}

// HandleEnvelope answers one client frame with a response, error or pong
// envelope.
func (c *ClientSession) HandleEnvelope(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return c.responder.errorReply(env.ID, CodeSessionClosed, ErrSessionClosed.Error(), "")
	}
	return c.responder.Reply(ctx, env)
}

// Close unsubscribes the session. It is safe to call more than once.
func (c *ClientSession) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.bus.Unsubscribe(c.sub)
}
