package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// localLayouts are the zone-less forms some firmware sends. They are read
// as UTC.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
}

// Timestamp accepts RFC3339, a few zone-less date-time layouts, or Unix
// epoch milliseconds (numbers or numeric strings), which is what device
// firmware without an RTC sends. It always marshals as RFC3339.
//
// A value in none of these forms does not fail decoding: Time stays zero and
// Invalid holds the raw value, so the receiver can substitute its own clock.
type Timestamp struct {
	time.Time
	Invalid string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t.Time = parsed
			return nil
		}
		for _, layout := range localLayouts {
			if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				t.Time = parsed
				return nil
			}
		}
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	t.Invalid = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
