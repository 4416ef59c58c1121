package discovery

import "errors"

var (
	// ErrUnmappedType is returned for vendor types with no category.
	ErrUnmappedType = errors.New("discovery: unmapped device type")

	// ErrUnsupportedDevice is returned for types that map to a category but
	// have no entity implementation.
	ErrUnsupportedDevice = errors.New("discovery: unsupported device")

	// ErrNoCallback is returned when no platform accepts the category.
	ErrNoCallback = errors.New("discovery: no platform callback")

	// ErrEmptyRecord is returned when the fetcher yields no record and no error.
	ErrEmptyRecord = errors.New("discovery: empty device record")

	// ErrPanic wraps a panic recovered during an attempt.
	ErrPanic = errors.New("discovery: panic during attempt")

	// ErrNoFetcher is returned by NewCoordinator without a Fetcher.
	ErrNoFetcher = errors.New("discovery: fetcher is required")
)
