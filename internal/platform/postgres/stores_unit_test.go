package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/batchflow/internal/store"
	"github.com/stretchr/testify/assert"
)

// mockDBTX is a minimal store.DBTX for construction-level tests.
// Query behavior itself is covered by integration tests against a real
// database.
type mockDBTX struct{}

func (m *mockDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func TestNewStores(t *testing.T) {
	db := &mockDBTX{}

	batchStore := NewPostgresBatchStore(db)
	assert.NotNil(t, batchStore)

	taskStore := NewPostgresTaskStore(db)
	assert.NotNil(t, taskStore)

	webhookStore := NewPostgresWebhookStore(db)
	assert.NotNil(t, webhookStore)
}

func TestWithTxReturnsIndependentStore(t *testing.T) {
	db := &sql.DB{}

	original := NewPostgresTaskStore(db)
	bound := original.WithTx(nil)

	assert.NotNil(t, bound)
	assert.NotSame(t, original, bound)
	assert.Equal(t, db, original.db, "original store keeps its connection")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "nil_error",
			in:   nil,
			want: nil,
		},
		{
			name: "no_rows_maps_to_not_found",
			in:   sql.ErrNoRows,
			want: store.ErrNotFound,
		},
		{
			name: "unique_violation_maps_to_duplicate",
			in:   &pgconn.PgError{Code: uniqueViolationCode},
			want: store.ErrDuplicate,
		},
		{
			name: "foreign_key_violation_maps_to_invalid_entity",
			in:   &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "tasks_batch_id_fkey"},
			want: store.ErrInvalidEntity,
		},
		{
			name: "check_violation_maps_to_invalid_entity",
			in:   &pgconn.PgError{Code: checkViolationCode},
			want: store.ErrInvalidEntity,
		},
		{
			name: "not_null_violation_maps_to_invalid_entity",
			in:   &pgconn.PgError{Code: notNullViolationCode, ColumnName: "input"},
			want: store.ErrInvalidEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapErrorPassesThroughUnknownErrors(t *testing.T) {
	cause := errors.New("connection refused")
	assert.Same(t, cause, MapError(cause))

	wrapped := fmt.Errorf("querying: %w", sql.ErrNoRows)
	assert.ErrorIs(t, MapError(wrapped), store.ErrNotFound)
}

func TestIsViolationHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: uniqueViolationCode}
	fk := &pgconn.PgError{Code: foreignKeyViolationCode}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("plain")))
}
