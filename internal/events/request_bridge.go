package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Subscriber is the part of the MQTT client the request bridge uses.
type Subscriber interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Replier answers request envelopes. hub.Responder implements it.
type Replier interface {
	Reply(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error)
}

// RequestBridge serves requests published over MQTT.
//
// A request is a client envelope published to {prefix}/request/{action};
// the action comes from the topic. The reply is published to
// {prefix}/response/{id}. Requests without an id are served but not
// answered.
type RequestBridge struct {
	client  Subscriber
	topics  mqtt.Topics
	qos     byte
	replier Replier
	logger  Logger
}

// NewRequestBridge creates a bridge.
func NewRequestBridge(client Subscriber, topics mqtt.Topics, qos byte, replier Replier) *RequestBridge {
	return &RequestBridge{
		client:  client,
		topics:  topics,
		qos:     qos,
		replier: replier,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *RequestBridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to every request topic. Requests are served with ctx.
func (b *RequestBridge) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return b.handleMessage(ctx, topic, payload)
	}
	if err := b.client.Subscribe(b.topics.AllRequests(), b.qos, handler); err != nil {
		return fmt.Errorf("subscribing to requests: %w", err)
	}
	b.logger.Info("MQTT request bridge started", "topic", b.topics.AllRequests())
	return nil
}

func (b *RequestBridge) handleMessage(ctx context.Context, topic string, payload []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
	}
	env.Type = protocol.TypeRequest
	env.Action = mqtt.LastSegment(topic)

	reply, err := b.replier.Reply(ctx, env)
	if err != nil {
		return fmt.Errorf("building reply: %w", err)
	}
	if env.ID == "" {
		b.logger.Debug("MQTT request without id, reply dropped", "action", env.Action, "reply_type", reply.Type)
		return nil
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshalling reply: %w", err)
	}
	if err := b.client.Publish(b.topics.Response(env.ID), data, b.qos, false); err != nil {
		return fmt.Errorf("publishing reply: %w", err)
	}
	return nil
}
