package hub

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// DefaultSubscriberBuffer is used when Subscribe is given a non-positive
// buffer size.
const DefaultSubscriberBuffer = 64

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	ch      chan protocol.Event
	dropped atomic.Uint64
}

// Events returns the channel events are delivered on. It is closed by
// Unsubscribe.
func (s *Subscription) Events() <-chan protocol.Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Bus fans events out to subscribers without blocking the publisher.
//
// Publish holds the bus lock while it offers the event to each subscriber,
// so every subscriber sees events in publish order. A subscriber whose
// buffer is full misses that event.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logger Logger
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Subscribe registers a subscriber with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	s := &Subscription{ch: make(chan protocol.Event, buffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Calling it again is a
// no-op.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish offers ev to every subscriber and returns how many accepted it.
func (b *Bus) Publish(ev protocol.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for s := range b.subs {
		select {
		case s.ch <- ev:
			delivered++
		default:
			s.dropped.Add(1)
			b.logger.Debug("subscriber buffer full, dropping event", "event_type", ev.EventType())
		}
	}
	return delivered
}

// Count returns the number of subscribers.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
