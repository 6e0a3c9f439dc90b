package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/modelgate/internal/domain"
)

// CreateTaskRequest is the request body for task creation.
type CreateTaskRequest struct {
	Provider   string         `json:"provider" validate:"required"`
	Model      string         `json:"model" validate:"required"`
	Parameters map[string]any `json:"parameters" validate:"required"`
	IsAsync    bool           `json:"is_async"`
}

// TaskAcceptedResponse is returned for asynchronous task creation.
type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskErrorBody is the categorized task failure exposed to clients.
type TaskErrorBody struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// TaskStatusResponse reports a task's current lifecycle state.
type TaskStatusResponse struct {
	TaskID    string    `json:"task_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	IsAsync   bool      `json:"is_async"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskResultResponse reports a task's outcome. Ready is false while the
// task has not reached a terminal state; Result and Error are mutually
// exclusive and only set on completed/failed tasks respectively.
type TaskResultResponse struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Ready  bool            `json:"ready"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *TaskErrorBody  `json:"error,omitempty"`
}

// TaskListResponse is a page of task summaries.
type TaskListResponse struct {
	Tasks  []TaskStatusResponse `json:"tasks"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func statusResponse(t *domain.Task) TaskStatusResponse {
	return TaskStatusResponse{
		TaskID:    t.ID.String(),
		Provider:  t.Provider,
		Model:     t.Model,
		Status:    string(t.Status),
		IsAsync:   t.IsAsync,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func resultResponse(t *domain.Task, ready bool) TaskResultResponse {
	resp := TaskResultResponse{
		TaskID: t.ID.String(),
		Status: string(t.Status),
		Ready:  ready,
	}
	if t.Result != nil {
		resp.Result = t.Result
	}
	if t.Error != nil {
		resp.Error = &TaskErrorBody{Category: t.Error.Category, Message: t.Error.Message}
	}
	return resp
}
