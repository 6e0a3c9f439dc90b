package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task in its lifecycle.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// transitions is the task lifecycle state machine. Statuses absent from the
// map are terminal and accept no further transitions.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// IsValid reports whether s is one of the defined task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s accepts no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving a task
// from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TaskError is the categorized failure recorded on a task whose provider
// invocation ultimately failed.
type TaskError struct {
	// Category is the provider error category (auth, rate_limit,
	// bad_request, timeout, network, upstream) or "internal".
	Category string `json:"category"`

	// Message is a human-readable description safe to return to clients.
	Message string `json:"message"`
}

// Task represents one unit of model-invocation work with a persisted
// lifecycle state.
type Task struct {
	// ID uniquely identifies the task. Immutable after creation.
	ID uuid.UUID

	// Provider names the backend that will execute the invocation.
	Provider string

	// Model is the model name the provider will invoke.
	Model string

	// Parameters is the opaque caller-supplied parameter map. It must
	// contain either "prompt" or "messages".
	Parameters map[string]any

	// IsAsync selects queued execution; synchronous tasks run inline in
	// the request path.
	IsAsync bool

	// Status is the task's current lifecycle state.
	Status TaskStatus

	// Principal is the identity that created the task, used for
	// permission scoping on reads and listings.
	Principal string

	// Result holds the normalized provider response as JSON. Non-nil iff
	// Status is completed.
	Result json.RawMessage

	// Error holds the categorized failure. Non-nil iff Status is failed.
	Error *TaskError

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask creates a pending task for the given provider and model,
// validating the basic parameter shape. Provider/model membership checks
// happen at the orchestration layer against the provider registry.
func NewTask(provider, model string, params map[string]any, isAsync bool, principal string) (*Task, error) {
	if provider == "" {
		return nil, fmt.Errorf("%w: provider cannot be empty", ErrValidation)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", ErrValidation)
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Task{
		ID:         uuid.New(),
		Provider:   provider,
		Model:      model,
		Parameters: params,
		IsAsync:    isAsync,
		Status:     TaskStatusPending,
		Principal:  principal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ValidateParameters checks the basic shape of a task parameter map:
// either "prompt" or "messages" must be present and non-empty.
func ValidateParameters(params map[string]any) error {
	if params == nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingInput)
	}

	if prompt, ok := params["prompt"]; ok {
		if s, ok := prompt.(string); ok && s != "" {
			return nil
		}
		return fmt.Errorf("%w: parameter 'prompt' must be a non-empty string", ErrValidation)
	}

	if messages, ok := params["messages"]; ok {
		if list, ok := messages.([]any); ok && len(list) > 0 {
			return nil
		}
		return fmt.Errorf("%w: parameter 'messages' must be a non-empty list", ErrValidation)
	}

	return fmt.Errorf("%w: %w", ErrValidation, ErrMissingInput)
}
