package platform

import "errors"

var (
	// ErrEntityNotFound is returned when no platform holds the entity.
	ErrEntityNotFound = errors.New("platform: entity not found")

	// ErrWrongCategory is returned when an entity is added to the platform
	// of another category.
	ErrWrongCategory = errors.New("platform: entity category does not match platform")

	// ErrNotCommandable is returned for commands sent to read-only entities.
	ErrNotCommandable = errors.New("platform: entity does not accept commands")

	// ErrInvalidPayload is returned for command payloads that are not a JSON object.
	ErrInvalidPayload = errors.New("platform: invalid command payload")

	// ErrNotSubscribed is returned by HealthCheck when the command topic
	// subscription is not active.
	ErrNotSubscribed = errors.New("platform: not subscribed to command topics")
)
