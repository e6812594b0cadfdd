package store

import (
	"context"

	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// Store is the database a batch runs against. Implementations own their
// connection pool and must be closed when done.
type Store interface {
	// Begin opens the transaction a single batch runs in.
	Begin(ctx context.Context) (Tx, error)

	// Dialect returns the placeholder and quoting rules of the store.
	Dialect() batchsql.Dialect

	// BindParameters converts request parameters to driver arguments.
	BindParameters(params batchsql.Parameters) []any

	// ClassifyError maps a driver error onto an ErrorKind.
	ClassifyError(err error) ErrorKind

	// Location identifies the underlying data file or database for external
	// tools. It never contains credentials.
	Location() string

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is a transaction owned by one batch execution.
type Tx interface {
	// Execute runs one statement. Statements that return rows are collected
	// into the result; others report the number of rows affected. A failed
	// statement leaves the transaction usable for the next one.
	Execute(ctx context.Context, statement string, args ...any) (*Result, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Result is the outcome of one successful statement.
type Result struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	RowsAffected int64            `json:"rows_affected"`
}
