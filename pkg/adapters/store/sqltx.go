package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Savepoints holds the statements a dialect uses to isolate one statement
// inside a transaction. Release may be empty.
type Savepoints struct {
	Create   string
	Release  string
	Rollback string
}

// DBTx adapts a database/sql transaction to Tx.
type DBTx struct {
	tx         *sql.Tx
	savepoints *Savepoints
}

// NewDBTx wraps tx. When savepoints is non-nil every statement runs inside
// its own savepoint so that a failure does not poison the transaction.
func NewDBTx(tx *sql.Tx, savepoints *Savepoints) *DBTx {
	return &DBTx{tx: tx, savepoints: savepoints}
}

func (t *DBTx) Execute(ctx context.Context, statement string, args ...any) (*Result, error) {
	if t.savepoints == nil {
		return t.run(ctx, statement, args...)
	}

	if _, err := t.tx.ExecContext(ctx, t.savepoints.Create); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	result, err := t.run(ctx, statement, args...)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, t.savepoints.Rollback); rbErr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		return nil, err
	}

	if t.savepoints.Release != "" {
		if _, err := t.tx.ExecContext(ctx, t.savepoints.Release); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	return result, nil
}

func (t *DBTx) run(ctx context.Context, statement string, args ...any) (*Result, error) {
	if ReturnsRows(statement) {
		rows, err := t.tx.QueryContext(ctx, statement, args...)
		if err != nil {
			return nil, err
		}
		return CollectRows(rows)
	}

	res, err := t.tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	return &Result{RowsAffected: affected}, nil
}

func (t *DBTx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

// Rollback is a no-op after a successful Commit.
func (t *DBTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
