package protocol

import "errors"

var (
	// ErrMalformed is returned for frames that are not valid JSON objects
	// or miss required fields.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType is returned for a well-formed frame whose type is not
	// part of the protocol.
	ErrUnknownType = errors.New("protocol: unknown message type")
)
