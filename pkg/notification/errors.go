package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown notification or event ids
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when responding to a resolved notification
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidAction is returned for actions other than approve, reject and dismiss
	ErrInvalidAction = errors.New("invalid action")

	// ErrPersistence is matched by every PersistenceError
	ErrPersistence = errors.New("persistence failed")

	// ErrEventInPast is returned when a scheduled event would never fire
	ErrEventInPast = errors.New("event time must be in the future")

	// ErrInvalidSchedule is returned for unparsable cron expressions or timezones
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// PersistenceError wraps a store failure. The change it belonged to was
// not applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
