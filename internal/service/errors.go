package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/batchflow/internal/store"
)

// Common sentinel errors for the batch service.
var (
	// ErrBatchNotFound indicates that the batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrTaskNotFound indicates that the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidArgument indicates a structurally invalid request: missing
	// task input, unknown status, a dependency on a missing task, or a
	// dependency cycle.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition indicates a status transition the state machine
	// rejects.
	ErrInvalidTransition = fmt.Errorf("%w: status transition not permitted", ErrInvalidArgument)

	// ErrBatchTerminal indicates an operation on a batch that has already
	// reached a terminal status (e.g. canceling a completed batch).
	ErrBatchTerminal = fmt.Errorf("%w: batch is already terminal", ErrInvalidArgument)

	// ErrTaskNotClaimable indicates a claim attempt lost the race: the task
	// is no longer queued.
	ErrTaskNotClaimable = errors.New("task is not claimable")

	// ErrRetryExhausted indicates an attempt to re-queue a failed task whose
	// retry budget is already spent.
	ErrRetryExhausted = fmt.Errorf("%w: task retry budget exhausted", ErrInvalidArgument)

	// ErrDependencyCycle indicates the requested dependency edges would
	// close a cycle in the dependency graph.
	ErrDependencyCycle = fmt.Errorf("%w: dependency cycle detected", ErrInvalidArgument)
)

// BatchServiceError wraps errors from the batch service with context.
type BatchServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "cancel_batch")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for BatchServiceError.
func (e *BatchServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("batch service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *BatchServiceError) Unwrap() error {
	return e.Err
}

// newServiceError creates a BatchServiceError, mapping store-level sentinels
// to their service-level counterparts so callers never depend on store
// internals. Known sentinels pass through unwrapped.
func newServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrTaskNotClaimable):
		return err
	case errors.Is(err, store.ErrBatchNotFound):
		return ErrBatchNotFound
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrInvalidEntity):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return &BatchServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
