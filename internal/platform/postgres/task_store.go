// Package postgres provides PostgreSQL-backed implementations of the
// store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/platform/logger"
	"github.com/phrazzld/modelgate/internal/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// TaskStore implements store.TaskStore using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new PostgreSQL-backed TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to the provided transaction.
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &TaskStore{db: tx}
}

// CreateTask persists a new task.
func (s *TaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	params, err := json.Marshal(task.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode task parameters: %w", err)
	}

	query := `
		INSERT INTO tasks (id, provider, model, parameters, is_async, status, principal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Provider,
		task.Model,
		params,
		task.IsAsync,
		task.Status,
		task.Principal,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
		}
		log.Error("failed to save task", "task_id", task.ID, "error", err)
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

const taskColumns = `id, provider, model, parameters, is_async, status, principal,
	result, error_category, error_message, created_at, updated_at`

// GetTask retrieves a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns a filtered, paginated page of tasks, newest first.
func (s *TaskStore) ListTasks(ctx context.Context, filter store.ListFilter, page store.Page) (*store.TaskPage, error) {
	log := logger.FromContext(ctx)

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Model != "" {
		conds = append(conds, "model = "+arg(filter.Model))
	}
	if filter.Principal != "" {
		conds = append(conds, "principal = "+arg(filter.Principal))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", "error", err)
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := "SELECT " + taskColumns + " FROM tasks" + where +
		" ORDER BY created_at DESC LIMIT " + arg(page.Limit) + " OFFSET " + arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks", "error", err)
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &store.TaskPage{Total: total}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		result.Tasks = append(result.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return result, nil
}

// UpdateStatusIf atomically transitions a task's status, persisting the
// result or error payload in the same write. The WHERE clause on the
// expected status is what makes duplicate queue deliveries and
// cancellation races safe without any in-process locking.
func (s *TaskStore) UpdateStatusIf(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.StatusUpdate,
) error {
	log := logger.FromContext(ctx)

	var result any
	if update.Result != nil {
		result = []byte(update.Result)
	}
	var errCategory, errMessage any
	if update.Error != nil {
		errCategory = update.Error.Category
		errMessage = update.Error.Message
	}

	query := `
		UPDATE tasks
		SET status = $3, result = $4, error_category = $5, error_message = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query, id, from, to, result, errCategory, errMessage, time.Now().UTC())
	if err != nil {
		log.Error("failed to update task status",
			"task_id", id, "from", from, "to", to, "error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows: either the task is gone or its status moved under us.
	var current domain.TaskStatus
	err = s.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task status: %w", err)
	}
	return fmt.Errorf("%w: expected %s, found %s", store.ErrStaleStatus, from, current)
}

// PendingTaskIDs returns the ids of all pending tasks, oldest first.
func (s *TaskStore) PendingTaskIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.idsByStatus(ctx, domain.TaskStatusPending, 0)
}

// StaleProcessingIDs returns ids of tasks stuck in processing longer than
// olderThan.
func (s *TaskStore) StaleProcessingIDs(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	return s.idsByStatus(ctx, domain.TaskStatusProcessing, olderThan)
}

func (s *TaskStore) idsByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration) ([]uuid.UUID, error) {
	query := "SELECT id FROM tasks WHERE status = $1"
	args := []any{status}
	if olderThan > 0 {
		query += " AND updated_at < $2"
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		params      []byte
		result      []byte
		errCategory sql.NullString
		errMessage  sql.NullString
	)
	err := row.Scan(
		&task.ID,
		&task.Provider,
		&task.Model,
		&params,
		&task.IsAsync,
		&task.Status,
		&task.Principal,
		&result,
		&errCategory,
		&errMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &task.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode task parameters: %w", err)
		}
	}
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	if errCategory.Valid || errMessage.Valid {
		task.Error = &domain.TaskError{
			Category: errCategory.String,
			Message:  errMessage.String,
		}
	}
	return &task, nil
}
