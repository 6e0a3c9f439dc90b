// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a task status change would
	// violate the lifecycle state machine, e.g. cancelling a completed task.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrMissingInput is returned when task parameters carry neither a
	// prompt nor a messages list.
	ErrMissingInput = errors.New("parameter 'prompt' or 'messages' is required")
)
