package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/platform/logger"
	"github.com/phrazzld/batchflow/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new TaskStore bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

const taskColumns = `
	id, batch_id, type, status, priority, retry_count, max_retries,
	input, output, error_message, correlation_id,
	started_at, completed_at, created_at, updated_at`

// Create saves a task and its dependency edges. Callers that need the task
// and its edges committed atomically run this through WithTx.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task, dependsOn []uuid.UUID) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}

	query := `
		INSERT INTO tasks (id, batch_id, type, status, priority, retry_count, max_retries,
			input, output, error_message, correlation_id,
			started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.BatchID,
		task.Type,
		task.Status,
		task.Priority,
		task.RetryCount,
		task.MaxRetries,
		[]byte(task.Input),
		nullRawMessage(task.Output),
		task.Error,
		task.CorrelationID,
		task.StartedAt,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return MapError(err)
	}

	for _, depID := range dependsOn {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO task_dependencies (dependent_id, dependency_id, created_at) VALUES ($1, $2, $3)`,
			task.ID, depID, time.Now().UTC(),
		)
		if err != nil {
			log.Error("failed to create task dependency edge",
				"task_id", task.ID,
				"dependency_id", depID,
				"error", err)
			return MapError(err)
		}
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return s.getTask(ctx, query, id)
}

// GetForUpdate retrieves a task and locks its row for the remainder of the
// enclosing transaction. Meaningful only on a store bound via WithTx.
func (s *PostgresTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`
	return s.getTask(ctx, query, id)
}

func (s *PostgresTaskStore) getTask(ctx context.Context, query string, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, query, id)

	task, err := scanTask(row)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContext(ctx).Error("failed to get task", "task_id", id, "error", err)
		return nil, MapError(err)
	}

	return task, nil
}

// ListReady returns queued tasks whose dependency edges are all satisfied.
// Readiness is resolved in SQL with an anti-join, so the query never scans
// the full dependency graph; selection is served by the
// (status, priority, created_at) index.
func (s *PostgresTaskStore) ListReady(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		WHERE t.status = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM task_dependencies d
			JOIN tasks dep ON dep.id = d.dependency_id
			WHERE d.dependent_id = t.id
			  AND dep.status <> $2
		  )
	`
	args := []any{domain.TaskStatusQueued, domain.TaskStatusCompleted}

	if len(taskTypes) > 0 {
		query += fmt.Sprintf(" AND t.type = ANY($%d)", len(args)+1)
		args = append(args, taskTypes)
	}

	query += fmt.Sprintf(" ORDER BY t.priority DESC, t.created_at ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.queryTasks(ctx, query, args...)
}

// Claim conditionally transitions a queued task to processing. The WHERE
// status clause closes the read-then-write race: of two concurrent claims
// exactly one update matches a row, and the loser gets ErrUpdateFailed.
func (s *PostgresTaskStore) Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	query := `
		UPDATE tasks
		SET status = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + taskColumns

	row := s.db.QueryRowContext(ctx, query,
		domain.TaskStatusProcessing, now, id, domain.TaskStatusQueued)

	task, err := scanTask(row)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			// Either the task does not exist or another caller already
			// claimed it; both mean this claim lost.
			return nil, fmt.Errorf("%w: task %s is not claimable", store.ErrUpdateFailed, id)
		}
		log.Error("failed to claim task", "task_id", id, "error", err)
		return nil, MapError(err)
	}

	return task, nil
}

// Update applies a TaskUpdate to the task row.
func (s *PostgresTaskStore) Update(ctx context.Context, id uuid.UUID, update store.TaskUpdate) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1,
			output = COALESCE($2, output),
			error_message = $3,
			retry_count = COALESCE($4, retry_count),
			started_at = COALESCE($5, started_at),
			completed_at = CASE WHEN $6 THEN NULL ELSE COALESCE($7, completed_at) END,
			updated_at = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		update.Status,
		nullRawMessage(update.Output),
		update.Error,
		update.RetryCount,
		update.StartedAt,
		update.ClearCompletedAt,
		update.CompletedAt,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", id,
			"status", update.Status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// ListByBatch returns the tasks of a batch, optionally filtered by status.
func (s *PostgresTaskStore) ListByBatch(
	ctx context.Context,
	batchID uuid.UUID,
	status *domain.TaskStatus,
	limit int,
) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE batch_id = $1`
	args := []any{batchID}

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, *status)
	}

	query += " ORDER BY created_at ASC"

	// limit <= 0 means no cap; batch-wide operations (cancel, retry) need
	// every matching row.
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	return s.queryTasks(ctx, query, args...)
}

// ListFailedRetryable returns failed tasks of the batch with retry budget
// remaining, oldest first.
func (s *PostgresTaskStore) ListFailedRetryable(ctx context.Context, batchID uuid.UUID, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE batch_id = $1 AND status = $2 AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $3
	`
	return s.queryTasks(ctx, query, batchID, domain.TaskStatusFailed, limit)
}

// ListDependencies returns the tasks the given task depends on.
func (s *PostgresTaskStore) ListDependencies(ctx context.Context, id uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN task_dependencies d ON d.dependency_id = t.id
		WHERE d.dependent_id = $1
		ORDER BY t.created_at ASC
	`
	return s.queryTasks(ctx, query, id)
}

// ListDependents returns the tasks that depend on the given task.
func (s *PostgresTaskStore) ListDependents(ctx context.Context, id uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN task_dependencies d ON d.dependent_id = t.id
		WHERE d.dependency_id = $1
		ORDER BY t.created_at ASC
	`
	return s.queryTasks(ctx, query, id)
}

// CountUnsatisfiedDependencies returns how many of the task's dependencies
// have not completed yet.
func (s *PostgresTaskStore) CountUnsatisfiedDependencies(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM task_dependencies d
		JOIN tasks dep ON dep.id = d.dependency_id
		WHERE d.dependent_id = $1
		  AND dep.status <> $2
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, id, domain.TaskStatusCompleted).Scan(&count); err != nil {
		logger.FromContext(ctx).Error("failed to count unsatisfied dependencies",
			"task_id", id,
			"error", err)
		return 0, MapError(err)
	}

	return count, nil
}

// queryTasks runs a query returning task rows and scans them all.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn("failed to close rows", "error", closeErr)
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, MapError(err)
	}

	return tasks, nil
}

// scanTask reads a task from a row scanner.
func scanTask(row interface{ Scan(dest ...any) error }) (*domain.Task, error) {
	var (
		task   domain.Task
		input  []byte
		output []byte
	)

	err := row.Scan(
		&task.ID,
		&task.BatchID,
		&task.Type,
		&task.Status,
		&task.Priority,
		&task.RetryCount,
		&task.MaxRetries,
		&input,
		&output,
		&task.Error,
		&task.CorrelationID,
		&task.StartedAt,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Input = input
	if len(output) > 0 {
		task.Output = output
	}

	return &task, nil
}
