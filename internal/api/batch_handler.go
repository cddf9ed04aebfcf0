// Package api provides HTTP handlers for the API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/batchflow/internal/api/shared"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/service"
)

// BatchHandler handles batch-related HTTP requests
type BatchHandler struct {
	batchService BatchOrchestrator
	logger       *slog.Logger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batchService BatchOrchestrator, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for BatchHandler")
	}

	return &BatchHandler{
		batchService: batchService,
		logger:       logger.With(slog.String("component", "batch_handler")),
	}
}

// CreateBatchRequest represents the request body for creating a batch
type CreateBatchRequest struct {
	Type     string          `json:"type" validate:"required"`
	Name     string          `json:"name"`
	Priority int             `json:"priority"`
	Metadata json.RawMessage `json:"metadata"`
}

// CreateBatch handles POST /batches requests
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Batch type is required")
		return
	}

	batch, err := h.batchService.CreateBatch(r.Context(), service.CreateBatchInput{
		Type:     req.Type,
		Name:     req.Name,
		Priority: req.Priority,
		Metadata: req.Metadata,
	})
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, batchToResponse(batch))
}

// BatchStatusResponse is the response for GET /batches/{id}.
type BatchStatusResponse struct {
	BatchResponse
	Tasks []TaskResponse `json:"tasks,omitempty"`
}

// GetBatch handles GET /batches/{id} requests. Query parameters:
// include_tasks=true embeds the batch's tasks, status= filters them by task
// status, limit= caps how many are returned.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	includeTasks := r.URL.Query().Get("include_tasks") == "true"

	var statusFilter *domain.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TaskStatus(raw)
		if !status.IsValid() {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task status")
			return
		}
		statusFilter = &status
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.batchService.GetBatchStatus(r.Context(), batchID, includeTasks, statusFilter, limit)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	response := BatchStatusResponse{BatchResponse: batchToResponse(result.Batch)}
	if includeTasks {
		response.Tasks = tasksToResponse(result.Tasks)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// CancelBatch handles POST /batches/{id}/cancel requests
func (h *BatchHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.batchService.CancelBatch(r.Context(), batchID); err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	result, err := h.batchService.GetBatchStatus(r.Context(), batchID, false, nil, 0)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, batchToResponse(result.Batch))
}

// RetryBatchRequest represents the request body for retrying failed tasks.
type RetryBatchRequest struct {
	Limit int `json:"limit"`
}

// RetryBatchResponse reports which tasks were re-queued.
type RetryBatchResponse struct {
	RetriedTaskIDs []string `json:"retried_task_ids"`
}

// RetryBatch handles POST /batches/{id}/retry requests. The body is
// optional; an absent or zero limit re-queues up to the default page of
// failed tasks.
func (h *BatchHandler) RetryBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req RetryBatchRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	retried, err := h.batchService.RetryFailedTasks(r.Context(), batchID, req.Limit)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	ids := make([]string, 0, len(retried))
	for _, id := range retried {
		ids = append(ids, id.String())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, RetryBatchResponse{RetriedTaskIDs: ids})
}

// parseUUIDParam extracts and parses a UUID URL parameter, writing a 400
// response on failure.
func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}
