package hub

import "errors"

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("hub: not found")

	// ErrUnauthorized is returned when the hub rejects the token.
	ErrUnauthorized = errors.New("hub: unauthorized")

	// ErrRequestFailed is returned for transport failures and other non-2xx responses.
	ErrRequestFailed = errors.New("hub: request failed")

	// ErrWrongDeviceType is returned when a typed lookup finds a device of another type.
	ErrWrongDeviceType = errors.New("hub: wrong device type")

	// ErrNameNotSupported is returned when a device does not accept customName.
	ErrNameNotSupported = errors.New("hub: device does not support renaming")

	// ErrInvalidConfig is returned when the client is built without host or token.
	ErrInvalidConfig = errors.New("hub: invalid configuration")
)
