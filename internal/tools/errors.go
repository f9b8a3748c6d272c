// Package tools defines the capabilities available to the assistant.
//
// This file defines sentinel error types for capability execution.
package tools

import "fmt"

// ErrToolUnavailable is returned when a capability call targets a name
// that is not present in the registry. This indicates the model invented
// a capability, not a transient execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ErrInvalidArguments is returned when a capability call's arguments do
// not satisfy the capability's declared schema. The capability handler
// is never invoked, so no side effects occur.
type ErrInvalidArguments struct {
	ToolName string
	Reason   string
}

// Error implements the error interface.
func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("invalid arguments for %q: %s", e.ToolName, e.Reason)
}
