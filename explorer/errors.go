package explorer

import "errors"

var (
	// ErrUnknownClass is returned when a dataset names a cache class that
	// is not configured.
	ErrUnknownClass = errors.New("unknown cache class")

	// ErrNoDateColumn is returned by DateRange for datasets without a
	// declared date column.
	ErrNoDateColumn = errors.New("dataset has no date column")
)
