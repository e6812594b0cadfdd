package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// Adapter is a store backed by a PostgreSQL database.
type Adapter struct {
	config *Config
	pool   *pgxpool.Pool
}

var _ store.Store = (*Adapter)(nil)

// NewAdapter connects to PostgreSQL and verifies the connection.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres at %s: %w",
			logging.SanitizeConnectionString(cfg.ConnectionString()), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Adapter{config: cfg, pool: pool}, nil
}

func (a *Adapter) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &transaction{tx: tx}, nil
}

func (a *Adapter) Dialect() batchsql.Dialect {
	return batchsql.StandardDialect{Style: batchsql.PlaceholderDollar}
}

// BindParameters passes named parameters as pgx.NamedArgs, which pgx
// rewrites from @name to positional placeholders. Positional parameters bind
// to $1, $2, ... in order.
func (a *Adapter) BindParameters(params batchsql.Parameters) []any {
	if len(params.Positional) > 0 {
		return params.Positional
	}
	if len(params.Named) == 0 {
		return nil
	}
	return []any{pgx.NamedArgs(params.Named)}
}

// keyColumns pulls the column list out of a unique_violation detail such as
// "Key (tenant, user_id)=(1, 2) already exists."
var keyColumns = regexp.MustCompile(`^Key \(([^)]*)\)=`)

func (a *Adapter) ClassifyError(err error) store.ErrorKind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return store.KindUnknown
	}

	switch {
	case pgErr.Code == "23505": // unique_violation
		if m := keyColumns.FindStringSubmatch(pgErr.Detail); m != nil {
			cols := strings.Split(m[1], ",")
			if store.IsIDColumn(strings.TrimSpace(cols[len(cols)-1])) {
				return store.KindDuplicateID
			}
		}
		return store.KindConstraint
	case strings.HasPrefix(pgErr.Code, "23"):
		return store.KindConstraint
	case pgErr.Code == "42601": // syntax_error
		return store.KindSyntax
	case pgErr.Code == "42P02": // undefined_parameter
		return store.KindMisuse
	}
	return store.KindUnknown
}

func (a *Adapter) Location() string {
	return a.config.Location()
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// transaction runs each statement inside a savepoint. PostgreSQL aborts the
// whole transaction on any error otherwise.
type transaction struct {
	tx pgx.Tx
}

const savepointName = "batch_statement"

func (t *transaction) Execute(ctx context.Context, statement string, args ...any) (*store.Result, error) {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	result, err := t.run(ctx, statement, args...)
	if err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		return nil, err
	}

	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return result, nil
}

func (t *transaction) run(ctx context.Context, statement string, args ...any) (*store.Result, error) {
	rows, err := t.tx.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &store.Result{}

	// Statements that return rows (SELECT, ... RETURNING) are collected;
	// others still have to be drained so pgx executes them and fills in the
	// command tag.
	fieldDescs := rows.FieldDescriptions()
	if len(fieldDescs) > 0 {
		result.Columns = make([]string, len(fieldDescs))
		for i, fd := range fieldDescs {
			result.Columns[i] = fd.Name
		}

		result.Rows = make([]map[string]any, 0)
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("failed to read row values: %w", err)
			}
			row := make(map[string]any, len(result.Columns))
			for i, col := range result.Columns {
				row[col] = values[i]
			}
			result.Rows = append(result.Rows, row)
		}
		result.RowCount = len(result.Rows)
	} else {
		for rows.Next() {
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after a successful Commit.
func (t *transaction) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
