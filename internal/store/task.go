package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/modelgate/internal/domain"
)

// ListFilter narrows a task listing. Zero values mean "no filter"; an
// empty Principal lists across all principals and is reserved for
// system-scoped credentials.
type ListFilter struct {
	Status    domain.TaskStatus
	Model     string
	Principal string
}

// Page is limit/offset pagination for task listings.
type Page struct {
	Limit  int
	Offset int
}

// TaskPage is one page of task summaries plus the unpaginated total.
type TaskPage struct {
	Tasks []*domain.Task
	Total int
}

// StatusUpdate carries the payload persisted alongside a conditional
// status transition: the normalized result for completed, the categorized
// error for failed. Both nil for all other transitions.
type StatusUpdate struct {
	Result json.RawMessage
	Error  *domain.TaskError
}

// TaskStore defines the interface for persisting tasks.
//
// UpdateStatusIf is the store's one concurrency primitive: all
// cross-worker coordination (duplicate-delivery suppression, cancellation
// visibility) is expressed through it rather than in-process locks, so
// correctness holds whether the orchestrator and executor share a process
// or not.
type TaskStore interface {
	// CreateTask persists a new task.
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if absent.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks returns a filtered, paginated page of tasks ordered by
	// creation time descending.
	ListTasks(ctx context.Context, filter ListFilter, page Page) (*TaskPage, error)

	// UpdateStatusIf atomically transitions the task from `from` to `to`,
	// persisting the update payload in the same write. Returns
	// ErrStaleStatus if the persisted status no longer equals `from`,
	// ErrTaskNotFound if the task does not exist.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, update StatusUpdate) error

	// PendingTaskIDs returns the ids of all pending tasks, oldest first.
	// Used to rebuild the in-memory queue after a restart.
	PendingTaskIDs(ctx context.Context) ([]uuid.UUID, error)

	// StaleProcessingIDs returns ids of tasks stuck in processing longer
	// than olderThan, for the reaper to reset.
	StaleProcessingIDs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)

	// WithTx returns a TaskStore bound to the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
