// Package batch runs the statements of one request inside a single
// transaction, absorbing the failures a replayed script is expected to hit.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// Config contains the dependencies of an Executor.
type Config struct {
	Store store.Store

	// Deleter runs bulk deletes. Defaults to TransactionalDeleter.
	Deleter BulkDeleter

	Logger *zap.Logger
}

// Executor runs batches against one store. It is safe for concurrent use;
// every call to Execute uses its own transaction.
type Executor struct {
	store   store.Store
	deleter BulkDeleter
	logger  *zap.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	deleter := cfg.Deleter
	if deleter == nil {
		deleter = TransactionalDeleter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:   cfg.Store,
		deleter: deleter,
		logger:  logger.Named("batch"),
	}
}

// Execute runs stmts in order inside one transaction and commits it.
//
// Statement failures do not stop the batch: duplicate id and misuse errors
// are suppressed, anything else is logged and collected in HardErrors. Only
// a failure to begin or commit, or cancellation of ctx, fails the batch, in
// which case the transaction is rolled back.
func (e *Executor) Execute(ctx context.Context, stmts []batchsql.RewrittenStatement, params batchsql.Parameters) (*Outcome, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	outcome, err := e.run(ctx, tx, stmts, params)
	if err != nil {
		e.rollback(ctx, tx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		e.rollback(ctx, tx)
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return outcome, nil
}

func (e *Executor) run(ctx context.Context, tx store.Tx, stmts []batchsql.RewrittenStatement, params batchsql.Parameters) (*Outcome, error) {
	outcome := &Outcome{Statements: make([]StatementOutcome, 0, len(stmts))}
	requestArgs := e.store.BindParameters(params)

	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled before statement %d: %w", i, err)
		}

		args := requestArgs
		if stmt.Structured {
			args = stmt.BoundParams
		}

		start := time.Now()
		var (
			result *store.Result
			err    error
		)
		if stmt.BulkDelete {
			result, err = e.deleter.Delete(ctx, tx, stmt.SQL, args)
		} else {
			result, err = tx.Execute(ctx, stmt.SQL, args...)
		}
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("batch cancelled at statement %d: %w", i, ctx.Err())
		}

		so := StatementOutcome{
			Index:      i,
			Status:     StatusSuccess,
			BulkDelete: stmt.BulkDelete,
			Duration:   time.Since(start),
		}

		switch {
		case stmt.BulkDelete && !e.deleter.Transactional():
			outcome.NonTransactional = append(outcome.NonTransactional, i)
			so.Status = StatusExternal
			if err != nil {
				so.Status = StatusFailed
				so.Error = logging.SanitizeError(err)
				e.logger.Error("Bulk delete failed outside the transaction",
					zap.Int("statement_index", i),
					zap.String("statement", logging.SanitizeQuery(stmt.SQL)),
					zap.String("error", so.Error))
			}
		case err != nil:
			e.recordFailure(outcome, &so, stmt, err)
		default:
			if result != nil {
				so.RowsAffected = result.RowsAffected
			}
			if !stmt.BulkDelete {
				outcome.LastResult = result
			}
		}

		e.logger.Debug("Statement finished",
			zap.Int("statement_index", i),
			zap.String("status", string(so.Status)),
			zap.Bool("bulk_delete", so.BulkDelete),
			zap.Duration("duration", so.Duration))
		outcome.Statements = append(outcome.Statements, so)
	}

	return outcome, nil
}

func (e *Executor) recordFailure(outcome *Outcome, so *StatementOutcome, stmt batchsql.RewrittenStatement, err error) {
	kind := e.store.ClassifyError(err)
	so.Kind = kind
	so.Error = logging.SanitizeError(err)

	if kind.Suppressed() {
		so.Status = StatusSuppressed
		outcome.Suppressed++
		if kind == store.KindMisuse {
			e.logger.Info("Statement had nothing to execute",
				zap.Int("statement_index", so.Index),
				zap.String("error", so.Error))
		}
		return
	}

	so.Status = StatusFailed
	outcome.HardErrors = append(outcome.HardErrors, &StatementError{
		Index:     so.Index,
		Statement: stmt.SQL,
		Kind:      kind,
		Err:       err,
	})
	e.logger.Error("Statement failed",
		zap.Int("statement_index", so.Index),
		zap.String("kind", kind.String()),
		zap.String("statement", logging.SanitizeQuery(stmt.SQL)),
		zap.String("error", so.Error))
}

func (e *Executor) rollback(ctx context.Context, tx store.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		e.logger.Error("Failed to roll back batch",
			zap.String("error", logging.SanitizeError(err)))
	}
}
