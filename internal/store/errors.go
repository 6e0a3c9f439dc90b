package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrStaleStatus is returned by a conditional status update whose
	// precondition no longer holds: the task's persisted status differs
	// from the expected one. Callers use this to detect duplicate queue
	// deliveries and lost cancellation races.
	ErrStaleStatus = errors.New("task status precondition failed")

	// ErrDuplicate is returned when an insert would violate a uniqueness
	// constraint, e.g. re-creating a task with an existing id.
	ErrDuplicate = errors.New("entity already exists")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
