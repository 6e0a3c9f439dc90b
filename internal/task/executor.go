package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/provider"
	"github.com/phrazzld/modelgate/internal/store"
)

// ExecutorConfig holds configuration for the async executor.
type ExecutorConfig struct {
	// Workers determines how many concurrent workers process tasks. This
	// bounds in-flight provider invocations and is the primary
	// backpressure control.
	Workers int

	// TaskTimeout bounds a single provider invocation attempt.
	TaskTimeout time.Duration

	// MaxAttempts is the total number of invocation attempts for
	// transient provider failures. 1 disables retries.
	MaxAttempts int

	// RetryBase is the delay before the first retry; each subsequent
	// delay doubles, with +/-25% jitter.
	RetryBase time.Duration

	// StaleAge is how long a task may sit in processing before the
	// reaper fails it as timed out.
	StaleAge time.Duration

	// ReapInterval is how often the reaper scans for stale tasks.
	// If zero, defaults to 1 minute.
	ReapInterval time.Duration
}

// DefaultExecutorConfig returns an ExecutorConfig with reasonable defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Workers:      4,
		TaskTimeout:  60 * time.Second,
		MaxAttempts:  3,
		RetryBase:    500 * time.Millisecond,
		StaleAge:     10 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Executor is the pool of workers consuming the task queue. Each delivery
// is guarded by a conditional store update, so at-least-once queue
// semantics still yield at-most-one effective execution per task.
type Executor struct {
	store     store.TaskStore
	providers *provider.Registry
	queue     *Queue
	config    ExecutorConfig
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// inflight maps a task id to the cancel func of its invocation
	// context, letting a cancellation signal abort the provider call.
	inflight sync.Map
}

// NewExecutor creates an executor over the given store, provider registry
// and queue. The notifier, when non-nil, delivers best-effort cancellation
// signals for in-flight tasks.
func NewExecutor(
	taskStore store.TaskStore,
	providers *provider.Registry,
	queue *Queue,
	notifier *CancelNotifier,
	config ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		store:     taskStore,
		providers: providers,
		queue:     queue,
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	if notifier != nil {
		notifier.Subscribe(e.abortInflight)
	}
	return e
}

// Start recovers persisted pending work, then launches the worker pool and
// the stale-task reaper.
func (e *Executor) Start() error {
	if err := e.recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.wg.Add(1)
	go e.reaper()

	return nil
}

// Stop shuts the executor down, waiting for in-flight work to settle.
func (e *Executor) Stop() {
	e.cancel()
	e.wg.Wait()
}

// recover re-enqueues tasks that were pending when the process last
// stopped. The queue is in-memory; the store is the durable record.
func (e *Executor) recover() error {
	ctx := context.Background()

	ids, err := e.store.PendingTaskIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending tasks: %w", err)
	}

	e.logger.Info("recovering pending tasks", "count", len(ids))
	for _, id := range ids {
		if err := e.queue.Enqueue(id); err != nil {
			e.logger.Error("failed to requeue pending task", "task_id", id, "error", err)
		}
	}
	return nil
}

// worker processes task ids from the queue until shutdown.
func (e *Executor) worker(id int) {
	defer e.wg.Done()

	e.logger.Debug("starting worker", "worker_id", id)
	for {
		select {
		case <-e.ctx.Done():
			e.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-e.queue.Chan():
			if !ok {
				e.logger.Debug("task queue closed, stopping worker", "worker_id", id)
				return
			}
			if err := e.Execute(e.ctx, taskID); err != nil {
				e.logger.Error("task execution error",
					"task_id", taskID,
					"worker_id", id,
					"error", err)
			}
		}
	}
}

// Execute runs one delivery of the given task end to end: claim it with a
// conditional pending->processing update, invoke the provider, and record
// the terminal state. A delivery whose claim fails is a duplicate or a
// cancelled task and is discarded as a no-op. The same path serves
// synchronous requests, invoked inline by the orchestrator.
func (e *Executor) Execute(ctx context.Context, id uuid.UUID) error {
	log := e.logger.With("task_id", id)

	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Warn("queued task no longer exists, discarding delivery")
			return nil
		}
		return err
	}

	// Cancellation checkpoint: a cancel observed before invocation
	// begins skips execution entirely. Any other non-pending status is a
	// duplicate delivery.
	if t.Status != domain.TaskStatusPending {
		log.Debug("discarding delivery for non-pending task", "status", t.Status)
		return nil
	}

	err = e.store.UpdateStatusIf(ctx, id, domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			// Lost the claim race: another delivery or a cancellation
			// got there first.
			log.Debug("task claim lost, discarding delivery")
			return nil
		}
		return err
	}

	log.Info("processing task", "provider", t.Provider, "model", t.Model)

	resp, provErr := e.invokeWithRetry(ctx, t)
	if provErr != nil {
		return e.fail(ctx, log, id, provErr)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return e.fail(ctx, log, id, &domain.TaskError{
			Category: "internal",
			Message:  "failed to encode provider response",
		})
	}

	err = e.store.UpdateStatusIf(ctx, id, domain.TaskStatusProcessing, domain.TaskStatusCompleted,
		store.StatusUpdate{Result: raw})
	if errors.Is(err, store.ErrStaleStatus) {
		// Cancelled while the provider call was in flight; the result is
		// discarded, never persisted.
		log.Info("task cancelled mid-flight, discarding result")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("task completed", "total_tokens", resp.Usage.TotalTokens)
	return nil
}

// fail records a categorized error and transitions the task to failed,
// unless a cancellation won the race.
func (e *Executor) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, taskErr *domain.TaskError) error {
	err := e.store.UpdateStatusIf(ctx, id, domain.TaskStatusProcessing, domain.TaskStatusFailed,
		store.StatusUpdate{Error: taskErr})
	if errors.Is(err, store.ErrStaleStatus) {
		log.Info("task cancelled mid-flight, discarding error", "category", taskErr.Category)
		return nil
	}
	if err != nil {
		return err
	}
	log.Warn("task failed", "category", taskErr.Category, "message", taskErr.Message)
	return nil
}

// invokeWithRetry calls the task's provider with a bounded timeout,
// retrying transient failures with exponential backoff and jitter.
// Permanent failures and exhausted retries yield the categorized error to
// record on the task.
func (e *Executor) invokeWithRetry(ctx context.Context, t *domain.Task) (*provider.Response, *domain.TaskError) {
	p, err := e.providers.Get(t.Provider)
	if err != nil {
		// Validation happened at creation; reaching this means the
		// provider set changed across a restart.
		return nil, &domain.TaskError{Category: string(provider.CategoryBadRequest), Message: err.Error()}
	}

	log := e.logger.With("task_id", t.ID, "provider", t.Provider, "model", t.Model)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr *domain.TaskError
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		invokeCtx, cancel := context.WithTimeout(ctx, e.config.TaskTimeout)
		e.inflight.Store(t.ID, cancel)

		resp, err := p.Invoke(invokeCtx, t.Model, t.Parameters)

		e.inflight.Delete(t.ID)
		cancel()

		if err == nil {
			return resp, nil
		}

		taskErr, transient := classifyInvokeError(err)
		lastErr = taskErr

		if !transient {
			log.Warn("permanent provider failure", "category", taskErr.Category, "attempt", attempt)
			return nil, taskErr
		}
		if attempt == e.config.MaxAttempts {
			break
		}
		// The parent context going away means shutdown or cancellation,
		// not an upstream hiccup. Don't retry into the void.
		if ctx.Err() != nil {
			return nil, taskErr
		}

		delay := backoff(e.config.RetryBase, attempt, rng)
		log.Info("transient provider failure, retrying",
			"category", taskErr.Category,
			"attempt", attempt,
			"max_attempts", e.config.MaxAttempts,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// classifyInvokeError maps an invocation failure to the error recorded on
// the task, and reports whether it is worth retrying.
func classifyInvokeError(err error) (*domain.TaskError, bool) {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return &domain.TaskError{
			Category: string(provErr.Category),
			Message:  provErr.Message,
		}, provErr.Transient()
	}
	if errors.Is(err, domain.ErrValidation) {
		return &domain.TaskError{
			Category: string(provider.CategoryBadRequest),
			Message:  err.Error(),
		}, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TaskError{
			Category: string(provider.CategoryTimeout),
			Message:  "provider invocation timed out",
		}, true
	}
	return &domain.TaskError{Category: "internal", Message: "unexpected provider failure"}, false
}

// backoff computes the delay before retry number `attempt` (1-based):
// base * 2^(attempt-1), with +/-25% jitter.
func backoff(base time.Duration, attempt int, rng *rand.Rand) time.Duration {
	d := base << (attempt - 1)
	jitter := 0.75 + rng.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}

// abortInflight cancels the invocation context of a task if it is
// currently being executed by this pool.
func (e *Executor) abortInflight(id uuid.UUID) {
	if cancel, ok := e.inflight.Load(id); ok {
		e.logger.Debug("aborting in-flight invocation", "task_id", id)
		cancel.(context.CancelFunc)()
	}
}

// reaper periodically fails tasks stuck in processing longer than the
// configured stale age, e.g. after a worker crash. Failing (rather than
// requeueing) keeps every observable transition inside the state machine.
func (e *Executor) reaper() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.reapStale()
		}
	}
}

func (e *Executor) reapStale() {
	ctx := context.Background()

	ids, err := e.store.StaleProcessingIDs(ctx, e.config.StaleAge)
	if err != nil {
		e.logger.Error("failed to scan for stale tasks", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	e.logger.Info("found stale processing tasks", "count", len(ids))
	for _, id := range ids {
		err := e.store.UpdateStatusIf(ctx, id, domain.TaskStatusProcessing, domain.TaskStatusFailed,
			store.StatusUpdate{Error: &domain.TaskError{
				Category: string(provider.CategoryTimeout),
				Message:  "task exceeded processing time limit",
			}})
		if err != nil && !errors.Is(err, store.ErrStaleStatus) {
			e.logger.Error("failed to reap stale task", "task_id", id, "error", err)
		}
	}
}
