package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/phrazzld/batchflow/internal/api/shared"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	batchService BatchOrchestrator
	logger       *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(batchService BatchOrchestrator, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		batchService: batchService,
		logger:       logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTaskRequest represents the request body for creating a task
type CreateTaskRequest struct {
	BatchID       *string         `json:"batch_id"`
	Type          string          `json:"type" validate:"required"`
	Input         json.RawMessage `json:"input" validate:"required"`
	Priority      int             `json:"priority"`
	MaxRetries    int             `json:"max_retries"`
	CorrelationID *string         `json:"correlation_id"`
	DependsOn     []string        `json:"depends_on"`
}

// CreateTask handles POST /tasks requests
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task type and input are required")
		return
	}

	input := service.CreateTaskInput{
		Type:          req.Type,
		Input:         req.Input,
		Priority:      req.Priority,
		MaxRetries:    req.MaxRetries,
		CorrelationID: req.CorrelationID,
	}

	if req.BatchID != nil {
		batchID, err := uuid.Parse(*req.BatchID)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid batch ID format")
			return
		}
		input.BatchID = &batchID
	}

	for _, raw := range req.DependsOn {
		depID, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dependency ID format")
			return
		}
		input.DependsOn = append(input.DependsOn, depID)
	}

	task, err := h.batchService.CreateTask(r.Context(), input)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// ListNextTasks handles GET /tasks/next requests. Query parameters:
// limit= caps the page size, types= is a comma-separated task type filter.
func (h *TaskHandler) ListNextTasks(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	var taskTypes []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				taskTypes = append(taskTypes, t)
			}
		}
	}

	tasks, err := h.batchService.ListNextReadyTasks(r.Context(), limit, taskTypes)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// ClaimTask handles POST /tasks/{id}/claim requests. On conflict (the task
// was claimed by someone else first) it responds 409.
func (h *TaskHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	task, err := h.batchService.ClaimTask(r.Context(), taskID)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// UpdateTaskStatusRequest represents the request body for reporting a task
// status transition.
type UpdateTaskStatusRequest struct {
	Status string          `json:"status" validate:"required"`
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
}

// UpdateTaskStatusResponse reports the transition outcome.
type UpdateTaskStatusResponse struct {
	TaskResponse
	UnblockedTaskIDs []string `json:"unblocked_task_ids,omitempty"`
}

// UpdateTaskStatus handles PATCH /tasks/{id}/status requests
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTaskStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Status is required")
		return
	}

	unblocked, err := h.batchService.UpdateTaskStatus(r.Context(), taskID, domain.TaskStatus(req.Status), req.Output, req.Error)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	task, err := h.batchService.GetTask(r.Context(), taskID)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	response := UpdateTaskStatusResponse{TaskResponse: taskToResponse(task)}
	for _, id := range unblocked {
		response.UnblockedTaskIDs = append(response.UnblockedTaskIDs, id.String())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// GetTask handles GET /tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	task, err := h.batchService.GetTask(r.Context(), taskID)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}
