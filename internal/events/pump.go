package events

import (
	"context"

	"github.com/nerrad567/cellgate-core/internal/hub"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Logger defines the logging interface used by the sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink consumes bus events.
type Sink interface {
	Handle(ctx context.Context, ev protocol.Event) error
}

// Pump subscribes sink to bus and feeds it until ctx is cancelled. Sink
// errors are logged and do not stop the pump.
func Pump(ctx context.Context, bus *hub.Bus, buffer int, name string, sink Sink, logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	sub := bus.Subscribe(buffer)
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			if n := sub.Dropped(); n > 0 {
				logger.Warn("event sink dropped events", "sink", name, "dropped", n)
			}
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := sink.Handle(ctx, ev); err != nil {
				logger.Warn("event sink failed", "sink", name, "event_type", ev.EventType(), "error", err)
			}
		}
	}
}
