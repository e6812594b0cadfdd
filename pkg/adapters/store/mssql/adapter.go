package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// SQL Server error numbers the adapter classifies.
const (
	errUniqueConstraint = 2627 // PRIMARY KEY or UNIQUE constraint
	errUniqueIndex      = 2601
	errConstraint       = 547 // FOREIGN KEY or CHECK
	errNotNull          = 515
	errSyntax           = 102
	errSyntaxKeyword    = 156
)

// Adapter is a store backed by a SQL Server database.
type Adapter struct {
	config *Config
	db     *sql.DB
}

var _ store.Store = (*Adapter)(nil)

// savepoints isolate each statement; SQL Server has no RELEASE.
var savepoints = &store.Savepoints{
	Create:   "SAVE TRANSACTION batch_statement",
	Rollback: "ROLLBACK TRANSACTION batch_statement",
}

// NewAdapter connects to SQL Server and verifies the connection.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection to %s: %w",
			logging.SanitizeConnectionString(cfg.ConnectionString()), err)
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
	return store.NewDBTx(tx, savepoints), nil
}

func (a *Adapter) Dialect() batchsql.Dialect {
	return batchsql.StandardDialect{Style: batchsql.PlaceholderAtP}
}

// BindParameters passes named parameters as sql.Named (@name in SQL).
// Positional parameters bind to @p1, @p2, ... in order.
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

var constraintName = regexp.MustCompile(`(?:constraint|index) '([^']+)'`)

func (a *Adapter) ClassifyError(err error) store.ErrorKind {
	var msErr mssqldb.Error
	if !errors.As(err, &msErr) {
		return store.KindUnknown
	}
	return classifyNumber(msErr.Number, msErr.Message)
}

func classifyNumber(number int32, message string) store.ErrorKind {
	switch number {
	case errUniqueConstraint, errUniqueIndex:
		if strings.Contains(message, "PRIMARY KEY constraint") {
			return store.KindDuplicateID
		}
		if m := constraintName.FindStringSubmatch(message); m != nil && store.IsIDColumn(m[1]) {
			return store.KindDuplicateID
		}
		return store.KindConstraint
	case errConstraint, errNotNull:
		return store.KindConstraint
	case errSyntax, errSyntaxKeyword:
		return store.KindSyntax
	}
	return store.KindUnknown
}

func (a *Adapter) Location() string {
	return a.config.Location()
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
