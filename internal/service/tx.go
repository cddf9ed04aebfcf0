package service

import (
	"context"
	"database/sql"

	"github.com/phrazzld/batchflow/internal/store"
)

// TxRunner executes a function within a database transaction. The service
// depends on this seam instead of *sql.DB directly so tests can supply an
// in-memory implementation.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn store.TxFn) error
}

// sqlTxRunner is the production TxRunner backed by store.RunInTransaction.
type sqlTxRunner struct {
	db *sql.DB
}

// NewTxRunner wraps a database handle as a TxRunner.
func NewTxRunner(db *sql.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return store.RunInTransaction(ctx, r.db, fn)
}
