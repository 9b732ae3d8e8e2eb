package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a tool's configuration is missing or invalid
	ErrConfiguration = errors.New("invalid tool configuration")

	// ErrKindMismatch is returned when a tool does not implement its declared kind
	ErrKindMismatch = errors.New("tool kind mismatch")

	// ErrDuplicateTool is returned when a tool name is registered twice
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound is returned when a tool name is unknown
	ErrToolNotFound = errors.New("tool not found")

	// ErrRunningClaimed is returned when a second owner claims the running flags
	ErrRunningClaimed = errors.New("running flags already claimed")
)

// ConfigurationError names the offending option of a tool configuration
type ConfigurationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("tool %s: option %q: %s", e.Tool, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
