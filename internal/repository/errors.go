package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrRunAlreadyActive is returned when a MainRun is running and force is off.
	ErrRunAlreadyActive = errors.New("a main run is already running")
	// ErrInvalidTransition is returned for a run status change outside the lifecycle DAG.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrRateExceeded is returned when a source's request quota cannot be met before the deadline.
	ErrRateExceeded = errors.New("rate limit exceeded")
	// ErrUnrecognizedLayout is returned by adapters when a list page has neither listings nor a known structure.
	ErrUnrecognizedLayout = errors.New("unrecognized page layout")
)
