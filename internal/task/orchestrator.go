package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/provider"
	"github.com/phrazzld/modelgate/internal/store"
)

// Listing pagination bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Principal identifies the caller for scoping. System-scoped credentials
// see every task; user-scoped credentials see only their own.
type Principal struct {
	ID     string
	System bool
}

// CreateRequest is a validated-at-the-edge request to create a task.
type CreateRequest struct {
	Provider   string
	Model      string
	Parameters map[string]any
	IsAsync    bool
	Principal  Principal
}

// CreateResult is the outcome of task creation. Response is populated only
// for synchronous execution.
type CreateResult struct {
	Task     *domain.Task
	Response *provider.Response
}

// Orchestrator validates task requests, owns the lifecycle operations, and
// decides between inline and queued execution.
type Orchestrator struct {
	store     store.TaskStore
	providers *provider.Registry
	queue     *Queue
	executor  *Executor
	notifier  *CancelNotifier
	logger    *slog.Logger
}

// NewOrchestrator wires the orchestrator over its collaborators.
func NewOrchestrator(
	taskStore store.TaskStore,
	providers *provider.Registry,
	queue *Queue,
	executor *Executor,
	notifier *CancelNotifier,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     taskStore,
		providers: providers,
		queue:     queue,
		executor:  executor,
		notifier:  notifier,
		logger:    logger,
	}
}

// Create validates the request against the provider registry, persists a
// pending task, and either executes it inline (sync) or enqueues it
// (async). Validation failures never leave a task record behind.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := o.providers.Validate(req.Provider, req.Model); err != nil {
		return nil, err
	}

	t, err := domain.NewTask(req.Provider, req.Model, req.Parameters, req.IsAsync, req.Principal.ID)
	if err != nil {
		return nil, err
	}

	if err := o.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	log := o.logger.With("task_id", t.ID, "provider", t.Provider, "model", t.Model)

	if !req.IsAsync {
		// Synchronous execution reuses the executor's invocation path
		// inline, then reports the terminal state directly.
		if err := o.executor.Execute(ctx, t.ID); err != nil {
			return nil, err
		}
		return o.syncResult(ctx, t.ID)
	}

	if err := o.queue.Enqueue(t.ID); err != nil {
		// The task is durably pending; startup recovery will pick it up
		// if the queue never drains. Creation still succeeded.
		log.Error("failed to enqueue task", "error", err)
	} else {
		log.Info("task enqueued")
	}

	return &CreateResult{Task: t}, nil
}

// syncResult reads back the terminal state of an inline execution.
func (o *Orchestrator) syncResult(ctx context.Context, id uuid.UUID) (*CreateResult, error) {
	t, err := o.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{Task: t}
	if t.Status == domain.TaskStatusCompleted && t.Result != nil {
		var resp provider.Response
		if err := json.Unmarshal(t.Result, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		res.Response = &resp
	}
	return res, nil
}

// Get returns a task visible to the principal. Tasks owned by someone else
// are reported as not found rather than forbidden, so task ids don't leak
// across principals.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID, p Principal) (*domain.Task, error) {
	t, err := o.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.System && t.Principal != p.ID {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

// Result returns the task together with a ready flag. A task that is
// still pending or processing is "not ready" — that is an in-band
// indication, not an error.
func (o *Orchestrator) Result(ctx context.Context, id uuid.UUID, p Principal) (*domain.Task, bool, error) {
	t, err := o.Get(ctx, id, p)
	if err != nil {
		return nil, false, err
	}
	return t, t.Status.IsTerminal(), nil
}

// Cancel marks a non-terminal task cancelled and signals the executor
// best-effort. Cancelling a terminal task is an invalid transition.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, p Principal) error {
	// Two attempts: the task may move pending->processing between the
	// read and the conditional write. A second failure means it reached
	// a terminal state and the cancel loses cleanly.
	for attempt := 0; attempt < 2; attempt++ {
		t, err := o.Get(ctx, id, p)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot cancel task in status %q", domain.ErrInvalidTransition, t.Status)
		}

		err = o.store.UpdateStatusIf(ctx, id, t.Status, domain.TaskStatusCancelled, store.StatusUpdate{})
		if err == nil {
			o.logger.Info("task cancelled", "task_id", id, "was", t.Status)
			o.notifier.Notify(id)
			return nil
		}
		if !errors.Is(err, store.ErrStaleStatus) {
			return err
		}
	}
	return fmt.Errorf("%w: task reached a terminal state during cancellation", domain.ErrInvalidTransition)
}

// List returns a page of tasks. User-scoped principals are pinned to
// their own tasks regardless of the requested filter.
func (o *Orchestrator) List(ctx context.Context, filter store.ListFilter, page store.Page, p Principal) (*store.TaskPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, filter.Status)
	}
	if !p.System {
		filter.Principal = p.ID
	}

	if page.Limit <= 0 {
		page.Limit = DefaultListLimit
	}
	if page.Limit > MaxListLimit {
		page.Limit = MaxListLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	return o.store.ListTasks(ctx, filter, page)
}
