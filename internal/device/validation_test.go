package device

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateSignal(t *testing.T) {
	tests := []struct {
		signal  int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{15, false},
		{31, false},
		{32, true},
		{99, true},
	}

	for _, tt := range tests {
		err := ValidateSignal(tt.signal)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSignal(%d) error = %v, wantErr %v", tt.signal, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidSignal) {
			t.Errorf("ValidateSignal(%d) error = %v, want ErrInvalidSignal", tt.signal, err)
		}
	}
}

func TestValidateDevice(t *testing.T) {
	signal := 12
	badSignal := 50

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"nil", nil, ErrInvalidDevice},
		{"valid", &Device{ID: "d1", Name: "Modem", TokenHash: "h"}, nil},
		{"valid with signal", &Device{ID: "d1", Name: "Modem", TokenHash: "h", Signal: &signal}, nil},
		{"missing id", &Device{Name: "Modem", TokenHash: "h"}, ErrInvalidDevice},
		{"blank name", &Device{ID: "d1", Name: "  ", TokenHash: "h"}, ErrInvalidName},
		{"long name", &Device{ID: "d1", Name: strings.Repeat("x", 101), TokenHash: "h"}, ErrInvalidName},
		{"missing token", &Device{ID: "d1", Name: "Modem"}, ErrInvalidDevice},
		{"long phone", &Device{ID: "d1", Name: "Modem", TokenHash: "h", PhoneNumber: strings.Repeat("1", 40)}, ErrInvalidDevice},
		{"bad signal", &Device{ID: "d1", Name: "Modem", TokenHash: "h", Signal: &badSignal}, ErrInvalidSignal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevice(tt.device)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDevice_PresenceTransitions(t *testing.T) {
	var d Device
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	d.MarkOnline(t0)
	if !d.Online || d.LastSeen == nil || !d.LastSeen.Equal(t0) {
		t.Fatalf("MarkOnline() left %+v", d)
	}

	d.RecordHeartbeat(t0.Add(time.Second), 22)
	if d.Signal == nil || *d.Signal != 22 {
		t.Errorf("Signal = %v, want 22", d.Signal)
	}

	// Out of range signal reads as unknown, the heartbeat still counts.
	d.RecordHeartbeat(t0.Add(2*time.Second), 99)
	if d.Signal != nil {
		t.Errorf("Signal = %v, want nil after invalid reading", *d.Signal)
	}
	if !d.LastSeen.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("LastSeen = %v, want heartbeat time", d.LastSeen)
	}

	d.MarkOffline(t0.Add(time.Minute))
	if d.Online {
		t.Error("MarkOffline() left device online")
	}
}
