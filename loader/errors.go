package loader

import "errors"

var (
	// ErrSourceUnavailable is returned when the store cannot be reached or
	// the read fails. The store error is wrapped alongside it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSchemaMismatch is returned when loaded contents do not match the
	// declared schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
