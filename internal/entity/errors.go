package entity

import "errors"

var (
	// ErrUnsupportedCommand is returned when an entity does not accept a command key.
	ErrUnsupportedCommand = errors.New("entity: unsupported command")

	// ErrInvalidCommand is returned when a command value is out of range or of the wrong type.
	ErrInvalidCommand = errors.New("entity: invalid command value")

	// ErrInvalidCategory is returned when a category string is not recognised.
	ErrInvalidCategory = errors.New("entity: invalid category")
)
