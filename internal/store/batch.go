package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
)

// BatchStore defines the interface for persisting batches.
type BatchStore interface {
	// Create saves a new batch to the store.
	// Returns ErrDuplicate if a batch with the same ID already exists.
	Create(ctx context.Context, batch *domain.Batch) error

	// GetByID retrieves a batch by its unique ID.
	// Returns ErrBatchNotFound if the batch does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error)

	// GetForUpdate retrieves a batch and locks its row for the remainder of
	// the enclosing transaction (SELECT ... FOR UPDATE). It must be called
	// on a store bound to a transaction via WithTx; callers use it to make
	// counter read-modify-write cycles atomic under concurrent completions.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Batch, error)

	// UpdateStatusAndCounters writes the batch's counters and status in a
	// single UPDATE. Returns ErrBatchNotFound if the batch does not exist.
	UpdateStatusAndCounters(
		ctx context.Context,
		id uuid.UUID,
		status domain.BatchStatus,
		counters domain.BatchCounters,
	) error

	// WithTx returns a new BatchStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller
	// (typically a service).
	WithTx(tx *sql.Tx) BatchStore
}
