package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// Adapter is a store backed by a SQLite data file.
type Adapter struct {
	config *Config
	db     *sql.DB
}

var _ store.Store = (*Adapter)(nil)

// NewAdapter opens the data file described by cfg and verifies it is usable.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{config: cfg, db: db}, nil
}

func (a *Adapter) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// A failed statement is rolled back by SQLite itself and leaves the
	// transaction open, so no savepoints are needed.
	return store.NewDBTx(tx, nil), nil
}

func (a *Adapter) Dialect() batchsql.Dialect {
	return batchsql.StandardDialect{Style: batchsql.PlaceholderQuestion}
}

// BindParameters passes named parameters as sql.Named so statements can use
// :name, @name or $name. Positional parameters bind to ? in order.
func (a *Adapter) BindParameters(params batchsql.Parameters) []any {
	if len(params.Positional) > 0 {
		return params.Positional
	}
	names := make([]string, 0, len(params.Named))
	for name := range params.Named {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, params.Named[name]))
	}
	return args
}

var uniqueFailed = regexp.MustCompile(`UNIQUE constraint failed: ([^()]+?)\s*(?:\(\d+\))?$`)

func (a *Adapter) ClassifyError(err error) store.ErrorKind {
	if err == nil {
		return store.KindUnknown
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		if strings.Contains(err.Error(), "not an error") {
			return store.KindMisuse
		}
		return store.KindUnknown
	}

	code := sqliteErr.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		if isDuplicateID(sqliteErr.Error()) {
			return store.KindDuplicateID
		}
		return store.KindConstraint
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		return store.KindConstraint
	case code&0xff == sqlite3.SQLITE_MISUSE:
		return store.KindMisuse
	case code&0xff == sqlite3.SQLITE_ERROR:
		msg := sqliteErr.Error()
		if strings.Contains(msg, "syntax error") || strings.Contains(msg, "incomplete input") {
			return store.KindSyntax
		}
	}
	return store.KindUnknown
}

// isDuplicateID reports whether a uniqueness message targets an id column.
// For composite keys the last column decides.
func isDuplicateID(msg string) bool {
	m := uniqueFailed.FindStringSubmatch(msg)
	if m == nil {
		return false
	}
	targets := strings.Split(m[1], ",")
	return store.IsIDColumn(strings.TrimSpace(targets[len(targets)-1]))
}

func (a *Adapter) Location() string {
	return a.config.Path
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
