package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when Topics has no prefix.
const DefaultTopicPrefix = "cellgate"

// Topics builds the gateway's MQTT topic names under a configurable
// prefix.
//
//	t := mqtt.Topics{Prefix: "cellgate"}
//	t.Event("callStatus")        // cellgate/event/callStatus
//	t.DevicePresence("dev-1")    // cellgate/device/dev-1/presence
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if p := strings.Trim(t.Prefix, "/"); p != "" {
		return p
	}
	return DefaultTopicPrefix
}

// SystemStatus is the retained online/offline status of the hub, also used
// for the last will.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// Event is where every broadcast event of eventType is mirrored.
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), SanitiseSegment(eventType))
}

// AllEvents matches every mirrored event.
func (t Topics) AllEvents() string {
	return t.prefix() + "/event/+"
}

// DevicePresence is the retained presence of one device.
func (t Topics) DevicePresence(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/presence", t.prefix(), SanitiseSegment(deviceID))
}

// Request is where clients submit a request of the given action.
func (t Topics) Request(action string) string {
	return fmt.Sprintf("%s/request/%s", t.prefix(), SanitiseSegment(action))
}

// AllRequests matches every request topic.
func (t Topics) AllRequests() string {
	return t.prefix() + "/request/+"
}

// Response is where the reply to requestID is published.
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", t.prefix(), SanitiseSegment(requestID))
}

// LastSegment returns the final level of a topic.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// SanitiseSegment makes s safe to use as one topic level: separators and
// wildcards are replaced with underscores.
func SanitiseSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
}
