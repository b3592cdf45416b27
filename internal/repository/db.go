package repository

import (
	"context"
	"database/sql"
)

// SQLExecutor represents both sql.DB and sql.Tx
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB represents a database that can begin transactions
type DB interface {
	SQLExecutor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ensure sql.DB and sql.Tx satisfy the interfaces
var (
	_ DB          = (*sql.DB)(nil)
	_ SQLExecutor = (*sql.Tx)(nil)
)

// Unique violation as reported by lib/pq.
const uniqueViolation = "23505"
