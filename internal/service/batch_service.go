package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/events"
	"github.com/phrazzld/batchflow/internal/store"
)

// CreateBatchInput carries the attributes for a new batch.
type CreateBatchInput struct {
	Type     string
	Name     string
	Priority int
	Metadata json.RawMessage
}

// CreateTaskInput carries the attributes for a new task.
type CreateTaskInput struct {
	BatchID       *uuid.UUID
	Type          string
	Input         json.RawMessage
	Priority      int
	MaxRetries    int
	CorrelationID *string
	DependsOn     []uuid.UUID
}

// BatchStatusResult is the response of GetBatchStatus: the batch plus an
// optional page of its tasks.
type BatchStatusResult struct {
	Batch *domain.Batch
	Tasks []*domain.Task
}

// BatchService orchestrates the batch/task lifecycle. Every mutation that
// touches both a task row and its batch's counters runs in one store
// transaction with the batch row locked, so concurrent completions cannot
// lose counter updates or race the terminal-status derivation.
type BatchService struct {
	txRunner TxRunner
	batches  store.BatchStore
	tasks    store.TaskStore
	bus      events.Publisher
	logger   *slog.Logger
}

// NewBatchService creates a new BatchService.
// It returns an error if any of the required dependencies are nil.
func NewBatchService(
	txRunner TxRunner,
	batches store.BatchStore,
	tasks store.TaskStore,
	bus events.Publisher,
	logger *slog.Logger,
) (*BatchService, error) {
	if txRunner == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "txRunner cannot be nil"}
	}
	if batches == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "batches store cannot be nil"}
	}
	if tasks == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "tasks store cannot be nil"}
	}
	if bus == nil {
		return nil, &BatchServiceError{Operation: "create_service", Message: "event bus cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchService{
		txRunner: txRunner,
		batches:  batches,
		tasks:    tasks,
		bus:      bus,
		logger:   logger.With("component", "batch_service"),
	}, nil
}

// CreateBatch creates a zero-counter batch and publishes BatchCreated.
func (s *BatchService) CreateBatch(ctx context.Context, in CreateBatchInput) (*domain.Batch, error) {
	batch, err := domain.NewBatch(in.Type, in.Name, in.Priority, in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, newServiceError("create_batch", "failed to persist batch", err)
	}

	s.publish(ctx, events.EventBatchCreated, &batch.ID, map[string]any{
		"batchId":   batch.ID.String(),
		"batchType": batch.Type,
		"name":      batch.Name,
	})

	s.logger.Info("batch created",
		"batch_id", batch.ID,
		"batch_type", batch.Type,
		"priority", batch.Priority)

	return batch, nil
}

// CreateTask creates a task, its dependency edges, and (for batched tasks)
// the batch counter increments, all in one transaction.
func (s *BatchService) CreateTask(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	task, err := domain.NewTask(in.BatchID, in.Type, in.Input, in.Priority, in.MaxRetries, in.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	// Every dependency must point at an existing task. Missing dependencies
	// are an argument error, not a not-found, to distinguish them from a
	// missing batch.
	for _, depID := range in.DependsOn {
		if _, err := s.tasks.GetByID(ctx, depID); err != nil {
			if store.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: dependency task %s does not exist", ErrInvalidArgument, depID)
			}
			return nil, newServiceError("create_task", "failed to load dependency", err)
		}
	}

	if len(in.DependsOn) > 0 {
		if err := verifyAcyclic(ctx, s.tasks, task.ID, in.DependsOn); err != nil {
			return nil, newServiceError("create_task", "dependency graph validation failed", err)
		}
	}

	var statusChange *statusTransition
	err = s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		batches := s.batches.WithTx(tx)

		if in.BatchID != nil {
			batch, err := batches.GetForUpdate(ctx, *in.BatchID)
			if err != nil {
				return err
			}

			counters := batch.Counters.Apply(domain.CounterDelta{Total: 1, Queued: 1})
			newStatus := domain.DeriveBatchStatus(counters)
			if err := batches.UpdateStatusAndCounters(ctx, batch.ID, newStatus, counters); err != nil {
				return err
			}
			if newStatus != batch.Status {
				statusChange = &statusTransition{batchID: batch.ID, from: batch.Status, to: newStatus}
			}
		}

		return tasks.Create(ctx, task, in.DependsOn)
	})
	if err != nil {
		return nil, newServiceError("create_task", "failed to persist task", err)
	}

	s.publishStatusChange(ctx, statusChange)

	s.logger.Info("task created",
		"task_id", task.ID,
		"task_type", task.Type,
		"batch_id", in.BatchID,
		"dependency_count", len(in.DependsOn))

	return task, nil
}

// GetBatchStatus returns the batch and, when includeTasks is set, a page of
// its tasks filtered by statusFilter.
func (s *BatchService) GetBatchStatus(
	ctx context.Context,
	batchID uuid.UUID,
	includeTasks bool,
	statusFilter *domain.TaskStatus,
	limit int,
) (*BatchStatusResult, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, newServiceError("get_batch_status", "failed to load batch", err)
	}

	result := &BatchStatusResult{Batch: batch}
	if includeTasks {
		tasks, err := s.tasks.ListByBatch(ctx, batchID, statusFilter, limit)
		if err != nil {
			return nil, newServiceError("get_batch_status", "failed to list batch tasks", err)
		}
		result.Tasks = tasks
	}

	return result, nil
}

// GetTask returns the task with the given ID.
func (s *BatchService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, newServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}

// ListNextReadyTasks returns up to limit queued tasks whose dependencies
// are satisfied, in dispatch order (priority descending, FIFO within a
// priority band).
func (s *BatchService) ListNextReadyTasks(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	tasks, err := s.tasks.ListReady(ctx, limit, taskTypes)
	if err != nil {
		return nil, newServiceError("list_ready_tasks", "failed to list ready tasks", err)
	}
	return tasks, nil
}

// ClaimTask conditionally transitions a queued task to processing and
// adjusts the batch counters. At most one concurrent caller wins a given
// task; losers receive ErrTaskNotClaimable.
func (s *BatchService) ClaimTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	var claimed *domain.Task
	err := s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		batches := s.batches.WithTx(tx)

		// Peek at batch membership first so batch and task rows are always
		// locked in the same order as the other mutating flows.
		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}

		var batch *domain.Batch
		if task.BatchID != nil {
			if batch, err = batches.GetForUpdate(ctx, *task.BatchID); err != nil {
				return err
			}
		}

		claimed, err = tasks.Claim(ctx, taskID)
		if err != nil {
			return err
		}

		if batch != nil {
			counters := batch.Counters.Apply(domain.CounterDelta{Queued: -1, Processing: 1})
			newStatus := domain.DeriveBatchStatus(counters)
			if err := batches.UpdateStatusAndCounters(ctx, batch.ID, newStatus, counters); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if isClaimRace(err) {
			return nil, ErrTaskNotClaimable
		}
		return nil, newServiceError("claim_task", "failed to claim task", err)
	}

	return claimed, nil
}

// UpdateTaskStatus applies a status transition reported by an executor.
// A transition to the current status is a no-op success. For terminal
// transitions the batch counters are adjusted and the aggregate status
// re-derived in the same transaction, and a TaskCompleted event carrying a
// reduced output projection is published after commit.
//
// Re-queueing a failed task carries retry semantics: it is rejected with
// ErrRetryExhausted when the retry budget is spent, and otherwise increments
// the retry count, clears the recorded error, and drops CompletedAt.
//
// The returned IDs are dependents that became structurally unblocked by
// this transition; the list is advisory and dispatch re-checks readiness.
func (s *BatchService) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	newStatus domain.TaskStatus,
	output json.RawMessage,
	taskErr *string,
) ([]uuid.UUID, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown task status %q", ErrInvalidArgument, newStatus)
	}

	// Batch membership is immutable, so reading it outside the transaction
	// is safe; it only determines lock order.
	pre, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, newServiceError("update_task_status", "failed to load task", err)
	}

	var (
		updated      *domain.Task
		statusChange *statusTransition
		noop         bool
	)

	err = s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		batches := s.batches.WithTx(tx)

		var batch *domain.Batch
		if pre.BatchID != nil {
			if batch, err = batches.GetForUpdate(ctx, *pre.BatchID); err != nil {
				return err
			}
		}

		task, err := tasks.GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}

		if task.Status == newStatus {
			noop = true
			return nil
		}
		if !task.Status.CanTransitionTo(newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, newStatus)
		}

		update := store.TaskUpdate{Status: newStatus, Error: taskErr}
		now := time.Now().UTC()
		if newStatus.IsTerminal() {
			update.CompletedAt = &now
		}
		if newStatus == domain.TaskStatusCompleted {
			update.Output = output
		}
		if newStatus == domain.TaskStatusProcessing && task.StartedAt == nil {
			update.StartedAt = &now
		}
		if newStatus == domain.TaskStatusQueued {
			// Re-queueing a failed task is the retry path: it consumes
			// retry budget, clears the recorded failure, and drops the
			// terminal timestamp.
			if !task.CanRetry() {
				return fmt.Errorf("%w: %d of %d attempts used",
					ErrRetryExhausted, task.RetryCount, task.MaxRetries)
			}
			retries := task.RetryCount + 1
			update.RetryCount = &retries
			update.Error = nil
			update.ClearCompletedAt = true
		}

		if err := tasks.Update(ctx, taskID, update); err != nil {
			return err
		}

		if batch != nil {
			counters := batch.Counters.Apply(transitionDelta(task.Status, newStatus))
			if !counters.Consistent() {
				return fmt.Errorf("counter invariant violated for batch %s: %+v", batch.ID, counters)
			}
			derived := domain.DeriveBatchStatus(counters)
			if err := batches.UpdateStatusAndCounters(ctx, batch.ID, derived, counters); err != nil {
				return err
			}
			if derived != batch.Status {
				statusChange = &statusTransition{batchID: batch.ID, from: batch.Status, to: derived}
			}
		}

		updated = task
		updated.Status = newStatus
		return nil
	})
	if err != nil {
		return nil, newServiceError("update_task_status", "failed to apply transition", err)
	}

	if noop {
		return nil, nil
	}

	if newStatus.IsTerminal() {
		s.publishTaskCompleted(ctx, updated, output, taskErr)
	}
	s.publishStatusChange(ctx, statusChange)

	if newStatus == domain.TaskStatusCompleted {
		return s.collectUnblockedDependents(ctx, taskID), nil
	}
	return nil, nil
}

// RetryFailedTasks re-queues up to limit failed tasks of the batch that
// still have retry budget, clearing their error and incrementing the retry
// count. A batch that had finished with failures moves back to processing.
// Returns the IDs of the re-queued tasks.
func (s *BatchService) RetryFailedTasks(ctx context.Context, batchID uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		retried      []uuid.UUID
		statusChange *statusTransition
	)

	err := s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		batches := s.batches.WithTx(tx)

		batch, err := batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}

		candidates, err := tasks.ListFailedRetryable(ctx, batchID, limit)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		for _, task := range candidates {
			retryCount := task.RetryCount + 1
			update := store.TaskUpdate{
				Status:           domain.TaskStatusQueued,
				RetryCount:       &retryCount,
				ClearCompletedAt: true,
			}
			if err := tasks.Update(ctx, task.ID, update); err != nil {
				return err
			}
			retried = append(retried, task.ID)
		}

		counters := batch.Counters.Apply(domain.CounterDelta{
			Failed: -len(retried),
			Queued: len(retried),
		})
		if !counters.Consistent() {
			return fmt.Errorf("counter invariant violated for batch %s: %+v", batch.ID, counters)
		}

		newStatus := domain.DeriveBatchStatus(counters)
		if err := batches.UpdateStatusAndCounters(ctx, batch.ID, newStatus, counters); err != nil {
			return err
		}
		if newStatus != batch.Status {
			statusChange = &statusTransition{batchID: batch.ID, from: batch.Status, to: newStatus}
		}

		return nil
	})
	if err != nil {
		return nil, newServiceError("retry_failed_tasks", "failed to retry tasks", err)
	}

	s.publishStatusChange(ctx, statusChange)

	if len(retried) > 0 {
		s.logger.Info("failed tasks re-queued",
			"batch_id", batchID,
			"count", len(retried))
	}

	return retried, nil
}

// CancelBatch fails every queued and processing task of a non-terminal
// batch and forces the batch status to failed. Work already handed to an
// executor is not interrupted; cancellation is structural only.
func (s *BatchService) CancelBatch(ctx context.Context, batchID uuid.UUID) error {
	var statusChange *statusTransition

	err := s.txRunner.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		batches := s.batches.WithTx(tx)

		batch, err := batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status.IsTerminal() {
			return ErrBatchTerminal
		}

		canceled := 0
		now := time.Now().UTC()
		cancelErr := "Canceled by user"
		for _, status := range []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusProcessing} {
			status := status
			pending, err := tasks.ListByBatch(ctx, batchID, &status, 0)
			if err != nil {
				return err
			}
			for _, task := range pending {
				update := store.TaskUpdate{
					Status:      domain.TaskStatusFailed,
					Error:       &cancelErr,
					CompletedAt: &now,
				}
				if err := tasks.Update(ctx, task.ID, update); err != nil {
					return err
				}
				canceled++
			}
		}

		counters := domain.BatchCounters{
			Total:     batch.Counters.Total,
			Completed: batch.Counters.Completed,
			Failed:    batch.Counters.Failed + canceled,
		}
		if !counters.Consistent() {
			return fmt.Errorf("counter invariant violated for batch %s: %+v", batch.ID, counters)
		}

		// Cancel forces failed regardless of what the counters would derive.
		if err := batches.UpdateStatusAndCounters(ctx, batchID, domain.BatchStatusFailed, counters); err != nil {
			return err
		}
		statusChange = &statusTransition{batchID: batchID, from: batch.Status, to: domain.BatchStatusFailed}

		return nil
	})
	if err != nil {
		return newServiceError("cancel_batch", "failed to cancel batch", err)
	}

	s.publishStatusChange(ctx, statusChange)

	s.logger.Info("batch canceled", "batch_id", batchID)
	return nil
}

// statusTransition records a batch aggregate-status change observed inside
// a transaction, published after commit.
type statusTransition struct {
	batchID uuid.UUID
	from    domain.BatchStatus
	to      domain.BatchStatus
}

// transitionDelta maps a task status transition onto a batch counter delta.
func transitionDelta(from, to domain.TaskStatus) domain.CounterDelta {
	var d domain.CounterDelta
	switch from {
	case domain.TaskStatusQueued:
		d.Queued = -1
	case domain.TaskStatusProcessing:
		d.Processing = -1
	case domain.TaskStatusCompleted:
		d.Completed = -1
	case domain.TaskStatusFailed:
		d.Failed = -1
	}
	switch to {
	case domain.TaskStatusQueued:
		d.Queued = 1
	case domain.TaskStatusProcessing:
		d.Processing = 1
	case domain.TaskStatusCompleted:
		d.Completed = 1
	case domain.TaskStatusFailed:
		d.Failed = 1
	}
	return d
}

// isClaimRace reports whether the error means the conditional claim update
// matched no row.
func isClaimRace(err error) bool {
	return errors.Is(err, store.ErrUpdateFailed)
}

// publish builds an event and hands it to the bus. Publication happens
// strictly after the triggering transaction has committed; a failure here
// is logged and swallowed, since the state change cannot be rolled back.
func (s *BatchService) publish(ctx context.Context, eventType events.EventType, batchID *uuid.UUID, payload any) {
	event, err := events.NewEvent(eventType, batchID, payload)
	if err != nil {
		s.logger.Error("failed to build event",
			"event_type", eventType,
			"error", err)
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event",
			"event_type", eventType,
			"event_id", event.ID,
			"error", err)
	}
}

// publishTaskCompleted publishes the TaskCompleted event for a terminal
// transition. Output is reduced to its identifier projection so events stay
// small and cannot go stale.
func (s *BatchService) publishTaskCompleted(ctx context.Context, task *domain.Task, output json.RawMessage, taskErr *string) {
	payload := map[string]any{
		"taskId":   task.ID.String(),
		"taskType": task.Type,
		"status":   string(task.Status),
	}
	if task.BatchID != nil {
		payload["batchId"] = task.BatchID.String()
	}
	if task.CorrelationID != nil {
		payload["correlationId"] = *task.CorrelationID
	}
	if ids := domain.OutputIdentifiers(output); ids != nil {
		payload["output"] = ids
	}
	if taskErr != nil {
		payload["error"] = *taskErr
	}

	s.publish(ctx, events.EventTaskCompleted, task.BatchID, payload)
}

func (s *BatchService) publishStatusChange(ctx context.Context, change *statusTransition) {
	if change == nil {
		return
	}
	s.publish(ctx, events.EventBatchStatusChanged, &change.batchID, map[string]any{
		"batchId":        change.batchID.String(),
		"previousStatus": string(change.from),
		"status":         string(change.to),
	})
}

// collectUnblockedDependents returns the queued dependents of taskID whose
// dependency edges are now all satisfied. Failures degrade to an empty
// advisory list rather than failing the committed transition.
func (s *BatchService) collectUnblockedDependents(ctx context.Context, taskID uuid.UUID) []uuid.UUID {
	dependents, err := s.tasks.ListDependents(ctx, taskID)
	if err != nil {
		s.logger.Warn("failed to list dependents", "task_id", taskID, "error", err)
		return nil
	}

	var unblocked []uuid.UUID
	for _, dep := range dependents {
		if dep.Status != domain.TaskStatusQueued {
			continue
		}
		remaining, err := s.tasks.CountUnsatisfiedDependencies(ctx, dep.ID)
		if err != nil {
			s.logger.Warn("failed to count unsatisfied dependencies",
				"task_id", dep.ID,
				"error", err)
			continue
		}
		if remaining == 0 {
			unblocked = append(unblocked, dep.ID)
		}
	}

	return unblocked
}
