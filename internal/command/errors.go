package command

import "errors"

var (
	// ErrCommandNotFound is returned when a command ID does not exist.
	ErrCommandNotFound = errors.New("command: not found")

	// ErrCallNotFound is returned when a call ID does not exist.
	ErrCallNotFound = errors.New("command: call not found")

	// ErrInvalidCommand is returned when a command or call fails validation.
	ErrInvalidCommand = errors.New("command: invalid")

	// ErrInvalidStatus is returned for a call status outside the known set.
	ErrInvalidStatus = errors.New("command: invalid call status")
)
