package device

import "time"

// Signal quality bounds as reported by the modem (AT+CSQ RSSI index).
const (
	MinSignal = 0
	MaxSignal = 31
)

// Device is a GSM-capable gateway device (typically an ESP32 with a SIM800
// class modem) known to the hub.
//
// Devices are created the first time a provisionable token authenticates and
// are never deleted by the hub itself.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// TokenHash is the peppered hash of the device's connect token. The raw
	// token is never stored.
	TokenHash string `json:"-"`

	// PhoneNumber is the SIM number last reported by the device.
	PhoneNumber string `json:"phone_number,omitempty"`

	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Signal is the last reported signal quality (0-31), nil when unknown.
	Signal *int `json:"signal,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkOnline records a successful connection at now.
func (d *Device) MarkOnline(now time.Time) {
	d.Online = true
	d.LastSeen = &now
}

// MarkOffline records a disconnect at now.
func (d *Device) MarkOffline(now time.Time) {
	d.Online = false
	d.LastSeen = &now
}

// RecordHeartbeat stores the heartbeat time and signal. An out of range
// signal is stored as unknown rather than rejected.
func (d *Device) RecordHeartbeat(now time.Time, signal int) {
	d.LastSeen = &now
	if ValidateSignal(signal) != nil {
		d.Signal = nil
		return
	}
	s := signal
	d.Signal = &s
}

// Stats summarises the device fleet for GET /api/v1/devices.
type Stats struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// Summarise counts devices and how many are online.
func Summarise(devices []Device) Stats {
	s := Stats{Total: len(devices)}
	for i := range devices {
		if devices[i].Online {
			s.Online++
		}
	}
	return s
}
