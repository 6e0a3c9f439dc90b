// Package api contains the HTTP handlers for the gateway surface: task
// creation, status/result polling, cancellation, listing, and health.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/modelgate/internal/api/middleware"
	"github.com/phrazzld/modelgate/internal/api/shared"
	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/store"
	"github.com/phrazzld/modelgate/internal/task"
)

// TaskHandler serves the /tasks endpoints.
type TaskHandler struct {
	orchestrator *task.Orchestrator
	logger       *slog.Logger
}

// NewTaskHandler creates a TaskHandler over the orchestrator.
func NewTaskHandler(orchestrator *task.Orchestrator, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{orchestrator: orchestrator, logger: logger}
}

// Create handles POST /tasks. Synchronous tasks respond with the normalized
// provider result; asynchronous tasks respond 202 with the task id.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Credential required")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "provider, model and parameters are required")
		return
	}

	res, err := h.orchestrator.Create(r.Context(), task.CreateRequest{
		Provider:   req.Provider,
		Model:      req.Model,
		Parameters: req.Parameters,
		IsAsync:    req.IsAsync,
		Principal:  principal,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if req.IsAsync {
		shared.RespondWithJSON(w, r, http.StatusAccepted, "Task accepted", TaskAcceptedResponse{
			TaskID: res.Task.ID.String(),
			Status: string(res.Task.Status),
		})
		return
	}

	if res.Response != nil {
		shared.RespondWithJSON(w, r, http.StatusOK, "Task completed", res.Response)
		return
	}

	// Synchronous execution reached a terminal state without a result:
	// the provider call failed (or the task was cancelled underneath us).
	// The task record already carries the categorized error.
	out := resultResponse(res.Task, true)
	message := "Task failed"
	if res.Task.Error != nil {
		message = res.Task.Error.Message
	}
	shared.RespondWithJSON(w, r, http.StatusBadGateway, message, out)
}

// Status handles GET /tasks/{id}/status.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	t, err := h.orchestrator.Get(r.Context(), id, principal)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, "Task status", statusResponse(t))
}

// Result handles GET /tasks/{id}/result. A task that has not reached a
// terminal state is reported in-band with ready=false, not as an error.
func (h *TaskHandler) Result(w http.ResponseWriter, r *http.Request) {
	principal, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	t, ready, err := h.orchestrator.Result(r.Context(), id, principal)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	message := "Task result"
	if !ready {
		message = "Task not finished"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, message, resultResponse(t, ready))
}

// Cancel handles POST /tasks/{id}/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, id, ok := h.taskRequest(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), id, principal); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, "Task cancelled", TaskAcceptedResponse{
		TaskID: id.String(),
		Status: string(domain.TaskStatusCancelled),
	})
}

// List handles GET /tasks with optional status/model filters and
// limit/offset pagination.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Credential required")
		return
	}

	filter := store.ListFilter{
		Status: domain.TaskStatus(r.URL.Query().Get("status")),
		Model:  r.URL.Query().Get("model"),
	}

	page := store.Page{Limit: task.DefaultListLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		page.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		page.Offset = offset
	}

	result, err := h.orchestrator.List(r.Context(), filter, page, principal)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	out := TaskListResponse{
		Tasks:  make([]TaskStatusResponse, 0, len(result.Tasks)),
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, t := range result.Tasks {
		out.Tasks = append(out.Tasks, statusResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, "Tasks", out)
}

// taskRequest extracts the principal and the {id} path parameter, writing
// the error response itself when either is missing or malformed.
func (h *TaskHandler) taskRequest(w http.ResponseWriter, r *http.Request) (task.Principal, uuid.UUID, bool) {
	principal, ok := middleware.GetPrincipal(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Credential required")
		return task.Principal{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return task.Principal{}, uuid.Nil, false
	}

	return principal, id, true
}
