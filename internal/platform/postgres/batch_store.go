package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/platform/logger"
	"github.com/phrazzld/batchflow/internal/store"
)

// PostgresBatchStore implements the store.BatchStore interface using PostgreSQL.
type PostgresBatchStore struct {
	db store.DBTX
}

// NewPostgresBatchStore creates a new PostgresBatchStore.
func NewPostgresBatchStore(db store.DBTX) *PostgresBatchStore {
	return &PostgresBatchStore{
		db: db,
	}
}

// Ensure PostgresBatchStore implements store.BatchStore interface
var _ store.BatchStore = (*PostgresBatchStore)(nil)

// WithTx returns a new BatchStore bound to the provided transaction.
func (s *PostgresBatchStore) WithTx(tx *sql.Tx) store.BatchStore {
	return &PostgresBatchStore{db: tx}
}

const batchColumns = `
	id, name, type, status, priority,
	total_tasks, queued_tasks, processing_tasks, completed_tasks, failed_tasks,
	metadata, created_at, updated_at`

// Create saves a new batch to the database.
func (s *PostgresBatchStore) Create(ctx context.Context, batch *domain.Batch) error {
	log := logger.FromContext(ctx)

	if err := batch.Validate(); err != nil {
		return store.NewStoreError("batch", "create", "validation failed", err)
	}

	query := `
		INSERT INTO batches (id, name, type, status, priority,
			total_tasks, queued_tasks, processing_tasks, completed_tasks, failed_tasks,
			metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		batch.ID,
		nullString(batch.Name),
		batch.Type,
		batch.Status,
		batch.Priority,
		batch.Counters.Total,
		batch.Counters.Queued,
		batch.Counters.Processing,
		batch.Counters.Completed,
		batch.Counters.Failed,
		nullRawMessage(batch.Metadata),
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create batch",
			"batch_id", batch.ID,
			"batch_type", batch.Type,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a batch by its unique ID.
func (s *PostgresBatchStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	return s.getBatch(ctx, query, id)
}

// GetForUpdate retrieves a batch and locks its row for the remainder of the
// enclosing transaction. Meaningful only on a store bound via WithTx.
func (s *PostgresBatchStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1 FOR UPDATE`
	return s.getBatch(ctx, query, id)
}

func (s *PostgresBatchStore) getBatch(ctx context.Context, query string, id uuid.UUID) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, query, id)

	batch, err := scanBatch(row)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, store.ErrBatchNotFound
		}
		logger.FromContext(ctx).Error("failed to get batch", "batch_id", id, "error", err)
		return nil, MapError(err)
	}

	return batch, nil
}

// UpdateStatusAndCounters writes the batch's counters and derived status in
// a single UPDATE statement.
func (s *PostgresBatchStore) UpdateStatusAndCounters(
	ctx context.Context,
	id uuid.UUID,
	status domain.BatchStatus,
	counters domain.BatchCounters,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE batches
		SET status = $1,
			total_tasks = $2, queued_tasks = $3, processing_tasks = $4,
			completed_tasks = $5, failed_tasks = $6,
			updated_at = $7
		WHERE id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		counters.Total,
		counters.Queued,
		counters.Processing,
		counters.Completed,
		counters.Failed,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to update batch status and counters",
			"batch_id", id,
			"status", status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rowsAffected == 0 {
		return store.ErrBatchNotFound
	}

	return nil
}

// scanBatch reads a batch from a row scanner.
func scanBatch(row interface{ Scan(dest ...any) error }) (*domain.Batch, error) {
	var (
		batch    domain.Batch
		name     sql.NullString
		metadata []byte
	)

	err := row.Scan(
		&batch.ID,
		&name,
		&batch.Type,
		&batch.Status,
		&batch.Priority,
		&batch.Counters.Total,
		&batch.Counters.Queued,
		&batch.Counters.Processing,
		&batch.Counters.Completed,
		&batch.Counters.Failed,
		&metadata,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	batch.Name = name.String
	if len(metadata) > 0 {
		batch.Metadata = metadata
	}

	return &batch, nil
}

// nullString converts an empty string to a NULL-able value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullRawMessage converts empty JSON to NULL so the column stays NULL
// instead of holding an empty string.
func nullRawMessage(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
