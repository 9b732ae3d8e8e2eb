package scheduler

import "errors"

var (
	// ErrNotActive is returned when scheduling a tool that has no Check
	ErrNotActive = errors.New("tool is not active")

	// ErrCheckTimeout marks a check that exceeded the check timeout
	ErrCheckTimeout = errors.New("check timed out")

	// ErrCheckPanic marks a check that panicked
	ErrCheckPanic = errors.New("check panicked")
)
