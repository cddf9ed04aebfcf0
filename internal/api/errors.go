package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/batchflow/internal/api/shared"
	"github.com/phrazzld/batchflow/internal/service"
	"github.com/phrazzld/batchflow/internal/store"
	"github.com/phrazzld/batchflow/internal/webhook"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrBatchNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, webhook.ErrWebhookNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrTaskNotClaimable):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, webhook.ErrInvalidWebhook),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		return "Batch not found"

	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, webhook.ErrWebhookNotFound):
		return "Webhook not found"

	case errors.Is(err, service.ErrTaskNotClaimable):
		return "Task has already been claimed"

	case errors.Is(err, service.ErrBatchTerminal):
		return "Batch has already finished"

	case errors.Is(err, service.ErrInvalidTransition):
		return "Status transition not permitted"

	case errors.Is(err, service.ErrRetryExhausted):
		return "Task retry budget exhausted"

	case errors.Is(err, service.ErrDependencyCycle):
		return "Task dependencies must not form a cycle"

	// Invalid argument errors carry validation detail that is safe to show.
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, webhook.ErrInvalidWebhook):
		return err.Error()

	default:
		return "An unexpected error occurred"
	}
}

// RespondWithServiceError writes the mapped status code and sanitized
// message for an internal error.
func RespondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
