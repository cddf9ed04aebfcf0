package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
)

// TaskUpdate carries the mutable fields of a task status transition.
// Nil pointer fields are left untouched.
type TaskUpdate struct {
	Status      domain.TaskStatus
	Output      []byte
	Error       *string
	RetryCount  *int
	StartedAt   *time.Time
	CompletedAt *time.Time

	// ClearCompletedAt resets completed_at to NULL, used when a failed task
	// is re-queued through the retry path.
	ClearCompletedAt bool
}

// TaskStore defines the interface for persisting tasks and their
// dependency edges.
type TaskStore interface {
	// Create saves a new task together with its dependency edges in a single
	// transaction when called through WithTx, or as individual statements
	// otherwise. Dependency edges are immutable once created.
	Create(ctx context.Context, task *domain.Task, dependsOn []uuid.UUID) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUpdate retrieves a task and locks its row for the remainder of
	// the enclosing transaction (SELECT ... FOR UPDATE). It must be called
	// on a store bound to a transaction via WithTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListReady returns up to limit queued tasks whose dependency edges are
	// all satisfied (dependency task completed), ordered by priority
	// descending then creation time ascending. An empty taskTypes filter
	// matches every type.
	ListReady(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error)

	// Claim conditionally transitions a queued task to processing and stamps
	// started_at. The update is guarded by status='queued' so at most one
	// concurrent caller wins; losers receive ErrUpdateFailed.
	Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update applies a TaskUpdate to the task row.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, id uuid.UUID, update TaskUpdate) error

	// ListByBatch returns the tasks belonging to a batch, optionally
	// filtered by status, ordered by creation time ascending, up to limit.
	// A limit of zero or below returns every matching row.
	ListByBatch(ctx context.Context, batchID uuid.UUID, status *domain.TaskStatus, limit int) ([]*domain.Task, error)

	// ListFailedRetryable returns failed tasks of the batch that still have
	// retry budget (retry_count < max_retries), oldest first, up to limit.
	ListFailedRetryable(ctx context.Context, batchID uuid.UUID, limit int) ([]*domain.Task, error)

	// ListDependencies returns the tasks the given task depends on.
	ListDependencies(ctx context.Context, id uuid.UUID) ([]*domain.Task, error)

	// ListDependents returns the tasks that depend on the given task.
	ListDependents(ctx context.Context, id uuid.UUID) ([]*domain.Task, error)

	// CountUnsatisfiedDependencies returns how many of the task's
	// dependencies have not completed yet.
	CountUnsatisfiedDependencies(ctx context.Context, id uuid.UUID) (int, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) TaskStore
}
