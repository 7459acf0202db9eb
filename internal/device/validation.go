package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength  = 100
	maxPhoneLength = 32
)

// ValidateSignal checks a signal quality value is within 0-31.
func ValidateSignal(signal int) error {
	if signal < MinSignal || signal > MaxSignal {
		return fmt.Errorf("%w: %d not in %d-%d", ErrInvalidSignal, signal, MinSignal, MaxSignal)
	}
	return nil
}

// ValidateDevice checks a device is fit to persist.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	name := strings.TrimSpace(d.Name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	if d.TokenHash == "" {
		return fmt.Errorf("%w: token hash is required", ErrInvalidDevice)
	}
	if len(d.PhoneNumber) > maxPhoneLength {
		return fmt.Errorf("%w: phone number too long", ErrInvalidDevice)
	}
	if d.Signal != nil {
		if err := ValidateSignal(*d.Signal); err != nil {
			return err
		}
	}
	return nil
}

// NewID generates a device identifier.
func NewID() string {
	return uuid.NewString()
}
