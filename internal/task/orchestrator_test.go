package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/provider"
	"github.com/phrazzld/modelgate/internal/store"
)

func TestCreateRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{
			name: "unknown provider",
			req: CreateRequest{
				Provider:   "nope",
				Model:      "fake-model",
				Parameters: map[string]any{"prompt": "hi"},
			},
		},
		{
			name: "unknown model",
			req: CreateRequest{
				Provider:   "fake",
				Model:      "nope-model",
				Parameters: map[string]any{"prompt": "hi"},
			},
		},
		{
			name: "missing prompt and messages",
			req: CreateRequest{
				Provider:   "fake",
				Model:      "fake-model",
				Parameters: map[string]any{"temperature": 0.5},
			},
		},
		{
			name: "empty prompt",
			req: CreateRequest{
				Provider:   "fake",
				Model:      "fake-model",
				Parameters: map[string]any{"prompt": ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testExecutorConfig())

			_, err := h.orch.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)

			// A rejected request never leaves a task record behind.
			page, err := h.store.ListTasks(context.Background(), store.ListFilter{}, store.Page{Limit: 10})
			require.NoError(t, err)
			assert.Zero(t, page.Total)
		})
	}
}

func TestCreateAsyncEnqueues(t *testing.T) {
	h := newHarness(t, testExecutorConfig())

	res, err := h.orch.Create(context.Background(), CreateRequest{
		Provider:   "fake",
		Model:      "fake-model",
		Parameters: map[string]any{"prompt": "hi"},
		IsAsync:    true,
		Principal:  Principal{ID: "user-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.Nil(t, res.Response)
	assert.Equal(t, domain.TaskStatusPending, res.Task.Status)

	select {
	case id := <-h.queue.Chan():
		assert.Equal(t, res.Task.ID, id)
	default:
		t.Fatal("expected the task id on the queue")
	}
}

func TestCreateAsyncSurvivesFullQueue(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	require.NoError(t, h.queue.Enqueue(uuid.New())) // occupy the buffer
	for h.queue.Enqueue(uuid.New()) == nil {
	}

	res, err := h.orch.Create(context.Background(), CreateRequest{
		Provider:   "fake",
		Model:      "fake-model",
		Parameters: map[string]any{"prompt": "hi"},
		IsAsync:    true,
		Principal:  Principal{ID: "user-1"},
	})
	require.NoError(t, err, "creation succeeds even when the queue is full")

	// The task is durably pending and recoverable.
	got, err := h.store.GetTask(context.Background(), res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
}

func TestCreateSyncReturnsResponse(t *testing.T) {
	h := newHarness(t, testExecutorConfig())

	res, err := h.orch.Create(context.Background(), CreateRequest{
		Provider:   "fake",
		Model:      "fake-model",
		Parameters: map[string]any{"prompt": "hi"},
		Principal:  Principal{ID: "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, res.Task.Status)
	require.NotNil(t, res.Response)
	assert.Equal(t, "fake-model", res.Response.Model)
	assert.Equal(t, "hello", res.Response.Choices[0].Message.Content)
}

func TestCreateSyncReportsFailure(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	h.provider.invoke = func(_ context.Context, _ int, _ string, _ map[string]any) (*provider.Response, error) {
		return nil, &provider.Error{Provider: "fake", Category: provider.CategoryAuth, Message: "bad key"}
	}

	res, err := h.orch.Create(context.Background(), CreateRequest{
		Provider:   "fake",
		Model:      "fake-model",
		Parameters: map[string]any{"prompt": "hi"},
		Principal:  Principal{ID: "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, res.Task.Status)
	assert.Nil(t, res.Response)
	require.NotNil(t, res.Task.Error)
	assert.Equal(t, string(provider.CategoryAuth), res.Task.Error.Category)
}

func TestGetScopesToPrincipal(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")
	ctx := context.Background()

	got, err := h.orch.Get(ctx, tk.ID, Principal{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	// Another user's task reads as not found, not forbidden.
	_, err = h.orch.Get(ctx, tk.ID, Principal{ID: "user-2"})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	// System scope sees everything.
	got, err = h.orch.Get(ctx, tk.ID, Principal{ID: "svc", System: true})
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
}

func TestResultReportsReadiness(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")
	ctx := context.Background()
	p := Principal{ID: "user-1"}

	_, ready, err := h.orch.Result(ctx, tk.ID, p)
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, h.executor.Execute(ctx, tk.ID))

	got, ready, err := h.orch.Result(ctx, tk.ID, p)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.NotNil(t, got.Result)
}

func TestCancelPendingTask(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")
	ctx := context.Background()

	var notified []uuid.UUID
	h.notifier.Subscribe(func(id uuid.UUID) { notified = append(notified, id) })

	require.NoError(t, h.orch.Cancel(ctx, tk.ID, Principal{ID: "user-1"}))

	got, err := h.store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
	assert.Equal(t, []uuid.UUID{tk.ID}, notified)

	// The cancelled task is never executed.
	require.NoError(t, h.executor.Execute(ctx, tk.ID))
	assert.Zero(t, h.provider.callCount())
}

func TestCancelProcessingTask(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")
	ctx := context.Background()

	require.NoError(t, h.store.UpdateStatusIf(ctx, tk.ID, domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{}))

	require.NoError(t, h.orch.Cancel(ctx, tk.ID, Principal{ID: "user-1"}))

	got, err := h.store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
}

func TestCancelTerminalTask(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")
	ctx := context.Background()

	require.NoError(t, h.executor.Execute(ctx, tk.ID))

	err := h.orch.Cancel(ctx, tk.ID, Principal{ID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// The completed result is untouched.
	got, err := h.store.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.NotNil(t, got.Result)
}

func TestCancelOtherPrincipalsTask(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	tk := h.addPendingTask(t, "user-1")

	err := h.orch.Cancel(context.Background(), tk.ID, Principal{ID: "user-2"})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestListScopesToPrincipal(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	h.addPendingTask(t, "user-1")
	h.addPendingTask(t, "user-1")
	h.addPendingTask(t, "user-2")
	ctx := context.Background()

	// User scope pins the filter to the caller regardless of the request.
	page, err := h.orch.List(ctx, store.ListFilter{Principal: "user-2"}, store.Page{}, Principal{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, tk := range page.Tasks {
		assert.Equal(t, "user-1", tk.Principal)
	}

	// System scope sees every task.
	page, err = h.orch.List(ctx, store.ListFilter{}, store.Page{}, Principal{ID: "svc", System: true})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestListFiltersAndPaginates(t *testing.T) {
	h := newHarness(t, testExecutorConfig())
	done := h.addPendingTask(t, "user-1")
	h.addPendingTask(t, "user-1")
	ctx := context.Background()

	require.NoError(t, h.executor.Execute(ctx, done.ID))

	page, err := h.orch.List(ctx, store.ListFilter{Status: domain.TaskStatusCompleted}, store.Page{}, Principal{ID: "user-1"})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, done.ID, page.Tasks[0].ID)

	page, err = h.orch.List(ctx, store.ListFilter{}, store.Page{Limit: 1}, Principal{ID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 2, page.Total)
}

func TestListRejectsInvalidStatus(t *testing.T) {
	h := newHarness(t, testExecutorConfig())

	_, err := h.orch.List(context.Background(), store.ListFilter{Status: "sleeping"}, store.Page{}, Principal{ID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
