package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed is returned when a device's first frame is not a valid
	// connect, its token is unknown and not provisionable, or the store
	// failed during authentication. The transport closes the connection.
	ErrAuthFailed = errors.New("hub: device authentication failed")

	// ErrNoDeviceAvailable is returned when a command cannot be routed to
	// an online device. Nothing is persisted.
	ErrNoDeviceAvailable = errors.New("hub: no device available")

	// ErrAmbiguousDevice is returned when no device id was given and more
	// than one device is online. It wraps ErrNoDeviceAvailable.
	ErrAmbiguousDevice = fmt.Errorf("%w: more than one device online, specify deviceId", ErrNoDeviceAvailable)

	// ErrDeliveryFailed is returned when the command was recorded but could
	// not be handed to the device's connection. The command is marked
	// failed and its id is still returned.
	ErrDeliveryFailed = errors.New("hub: delivery to device failed")

	// ErrSessionClosed is returned for frames or requests arriving after a
	// session was closed.
	ErrSessionClosed = errors.New("hub: session closed")

	// ErrInvalidRequest is returned for client requests that fail
	// validation.
	ErrInvalidRequest = errors.New("hub: invalid request")

	// ErrCommandNotFound is returned when a request references an unknown
	// command or call.
	ErrCommandNotFound = errors.New("hub: command not found")
)
