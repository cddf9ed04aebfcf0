// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in internal/store, backed by the pgx stdlib driver.
// Database errors are mapped onto the store sentinel errors so callers
// never see driver internals.
package postgres
