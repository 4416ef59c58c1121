package device

import "errors"

var (
	// ErrInvalidRecord is returned when a record lacks an id or cannot be parsed.
	ErrInvalidRecord = errors.New("device: invalid record")

	// ErrInvalidAttributes is returned when type-specific attributes do not decode.
	ErrInvalidAttributes = errors.New("device: invalid attributes")
)
