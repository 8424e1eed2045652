package storage

import "errors"

// Sentinel errors for store operations.
var (
	ErrNotFound   = errors.New("dataset not found in store")
	ErrReadFailed = errors.New("read failed")
)
