package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Publisher is the part of the MQTT client the mirror uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTMirror republishes bus events to MQTT.
type MQTTMirror struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	now    func() time.Time
}

// NewMQTTMirror creates a mirror publishing under topics at qos.
func NewMQTTMirror(pub Publisher, topics mqtt.Topics, qos byte) *MQTTMirror {
	return &MQTTMirror{pub: pub, topics: topics, qos: qos, now: time.Now}
}

// presencePayload is the retained per-device presence message.
type presencePayload struct {
	Online    bool   `json:"online"`
	Signal    *int   `json:"signal,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Handle publishes ev as an event envelope and, for presence, updates the
// device's retained presence topic.
func (m *MQTTMirror) Handle(_ context.Context, ev protocol.Event) error {
	now := m.now()
	env, err := protocol.NewEventEnvelope(ev, now)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling event envelope: %w", err)
	}
	if err := m.pub.Publish(m.topics.Event(ev.EventType()), data, m.qos, false); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.EventType(), err)
	}

	p, ok := ev.(protocol.PresenceEvent)
	if !ok {
		return nil
	}
	data, err = json.Marshal(presencePayload{
		Online:    p.Online,
		Signal:    p.Signal,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling presence: %w", err)
	}
	if err := m.pub.Publish(m.topics.DevicePresence(p.DeviceID), data, m.qos, true); err != nil {
		return fmt.Errorf("publishing presence for %s: %w", p.DeviceID, err)
	}
	return nil
}
