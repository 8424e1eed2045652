package session

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or ended session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLoadInProgress is returned by Begin while the flag is loading.
	ErrLoadInProgress = errors.New("load already in progress")

	// ErrInvalidTransition is returned when a flag cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("invalid load state transition")
)
