package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/styleforge/backend/internal/middleware"
	"github.com/styleforge/backend/internal/models"
	"github.com/styleforge/backend/internal/tasks"
)

const maxRequestBody = 1 << 20

// TaskService is the subset of the tasks service the handler needs.
type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, in tasks.CreateTaskInput) (*models.Task, error)
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	Cancel(ctx context.Context, userID, taskID uuid.UUID) error
}

// TaskHandler serves /v1/tasks endpoints.
type TaskHandler struct {
	Tasks     TaskService
	Validator *tasks.Validator
	Logger    *slog.Logger
}

type createTaskRequest struct {
	Prompt        string  `json:"prompt"`
	InputImageRef *string `json:"input_image_ref"`
	Style         *string `json:"style"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// CreateTask handles POST /v1/tasks.
// Auth (via middleware) -> Schema Validate -> Create + Enqueue -> 202.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate("create_task", body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	var req createTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	task, err := h.Tasks.CreateTask(r.Context(), userID, tasks.CreateTaskInput{
		Prompt:        req.Prompt,
		InputImageRef: req.InputImageRef,
		Style:         req.Style,
	})
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrValidation):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, tasks.ErrInsufficientCredits):
			writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient credits"})
		default:
			h.Logger.Error("create task", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, createTaskResponse{
		TaskID: task.ID.String(),
		Status: task.Status,
	})
}

// GetTask handles GET /v1/tasks/{id}. Task progress is observed only by
// re-invoking this endpoint.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}

	task, err := h.Tasks.GetTask(r.Context(), userID, taskID)
	if errors.Is(err, tasks.ErrNotFound) {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("get task", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /v1/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Tasks.ListTasks(r.Context(), userID)
	if err != nil {
		h.Logger.Error("list tasks", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CancelTask handles POST /v1/tasks/{id}/cancel. A task that is already
// terminal is reported as "already resolved", not as an error.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}

	err = h.Tasks.Cancel(r.Context(), userID, taskID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID.String(),
			"status":  models.TaskStatusCancelled,
		})
	case errors.Is(err, tasks.ErrNotFound):
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
	case errors.Is(err, tasks.ErrInvalidState):
		status := ""
		if task, gerr := h.Tasks.GetTask(r.Context(), userID, taskID); gerr == nil {
			status = task.Status
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID.String(),
			"status":  status,
			"detail":  "already resolved",
		})
	default:
		h.Logger.Error("cancel task", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
