package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/store"
)

// setupTestDB opens the integration test database, skipping when
// DATABASE_URL is not configured. Each test runs against a dedicated
// connection and cleans up the rows it created.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test - DATABASE_URL environment variable required")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "Failed to open database connection")
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM tasks WHERE principal LIKE 'it-%'")
		_ = db.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Failed to ping database")

	return db
}

func newIntegrationTask(t *testing.T, principal string) *domain.Task {
	t.Helper()
	tk, err := domain.NewTask("deepseek", "deepseek-chat",
		map[string]any{"prompt": "integration"}, true, principal)
	require.NoError(t, err)
	return tk
}

func TestTaskStoreCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tk := newIntegrationTask(t, "it-user-1")
	require.NoError(t, s.CreateTask(ctx, tk))

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, tk.Provider, got.Provider)
	assert.Equal(t, tk.Model, got.Model)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, "integration", got.Parameters["prompt"])
	assert.Nil(t, got.Result)
	assert.Nil(t, got.Error)

	// Duplicate ids are rejected.
	err = s.CreateTask(ctx, tk)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestTaskStoreGetMissing(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)

	_, err := s.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStoreUpdateStatusIf(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tk := newIntegrationTask(t, "it-user-2")
	require.NoError(t, s.CreateTask(ctx, tk))

	// Claim.
	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{}))

	// A second claim observes the stale precondition.
	err := s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{})
	assert.ErrorIs(t, err, store.ErrStaleStatus)

	// Complete with a result payload.
	result := json.RawMessage(`{"id":"resp-1","model":"deepseek-chat"}`)
	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusProcessing, domain.TaskStatusCompleted, store.StatusUpdate{Result: result}))

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.JSONEq(t, string(result), string(got.Result))
	assert.Nil(t, got.Error)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))

	// Unknown ids are distinguished from stale statuses.
	err = s.UpdateStatusIf(ctx, uuid.New(),
		domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStoreUpdateStatusIfRecordsError(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tk := newIntegrationTask(t, "it-user-3")
	require.NoError(t, s.CreateTask(ctx, tk))
	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{}))

	taskErr := &domain.TaskError{Category: "rate_limit", Message: "quota exhausted"}
	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusProcessing, domain.TaskStatusFailed, store.StatusUpdate{Error: taskErr}))

	got, err := s.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "rate_limit", got.Error.Category)
	assert.Nil(t, got.Result)
}

func TestTaskStoreListTasks(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	principal := fmt.Sprintf("it-list-%s", uuid.New())
	var created []*domain.Task
	for i := 0; i < 3; i++ {
		tk := newIntegrationTask(t, principal)
		require.NoError(t, s.CreateTask(ctx, tk))
		created = append(created, tk)
	}
	require.NoError(t, s.UpdateStatusIf(ctx, created[0].ID,
		domain.TaskStatusPending, domain.TaskStatusCancelled, store.StatusUpdate{}))

	page, err := s.ListTasks(ctx, store.ListFilter{Principal: principal}, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tasks, 3)

	page, err = s.ListTasks(ctx,
		store.ListFilter{Principal: principal, Status: domain.TaskStatusCancelled},
		store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	// Pagination.
	page, err = s.ListTasks(ctx, store.ListFilter{Principal: principal}, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tasks, 2)
}

func TestTaskStorePendingTaskIDs(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tk := newIntegrationTask(t, "it-user-4")
	require.NoError(t, s.CreateTask(ctx, tk))

	ids, err := s.PendingTaskIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, tk.ID)

	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusPending, domain.TaskStatusCancelled, store.StatusUpdate{}))

	ids, err = s.PendingTaskIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, tk.ID)
}

func TestTaskStoreStaleProcessingIDs(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tk := newIntegrationTask(t, "it-user-5")
	require.NoError(t, s.CreateTask(ctx, tk))
	require.NoError(t, s.UpdateStatusIf(ctx, tk.ID,
		domain.TaskStatusPending, domain.TaskStatusProcessing, store.StatusUpdate{}))

	// Fresh processing tasks are not stale.
	ids, err := s.StaleProcessingIDs(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, ids, tk.ID)

	// Age the row directly.
	_, err = db.Exec("UPDATE tasks SET updated_at = NOW() - INTERVAL '2 hours' WHERE id = $1", tk.ID)
	require.NoError(t, err)

	ids, err = s.StaleProcessingIDs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, ids, tk.ID)
}

func TestTaskStoreWithTx(t *testing.T) {
	db := setupTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	tk := newIntegrationTask(t, "it-user-6")
	require.NoError(t, s.WithTx(tx).CreateTask(ctx, tk))
	require.NoError(t, tx.Rollback())

	// The rollback discards the insert.
	_, err = s.GetTask(ctx, tk.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
