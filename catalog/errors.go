package catalog

import "errors"

var (
	// ErrNotFound is returned when an identifier is not registered.
	ErrNotFound = errors.New("dataset not found")

	ErrEmptyID           = errors.New("dataset id is empty")
	ErrDuplicateID       = errors.New("duplicate dataset id")
	ErrInvalidDescriptor = errors.New("invalid dataset descriptor")
)
