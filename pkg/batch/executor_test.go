package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

var (
	errDuplicate = errors.New("duplicate id")
	errMisuse    = errors.New("not an error")
	errSyntax    = errors.New("syntax error")
)

// mockStore is a Store whose statements succeed unless listed in failures.
type mockStore struct {
	failures  map[string]error
	results   map[string]*store.Result
	beginErr  error
	commitErr error

	executed   []string
	args       [][]any
	committed  bool
	rolledBack bool
	onExecute  func(statement string)
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) Begin(_ context.Context) (store.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &mockTx{store: m}, nil
}

func (m *mockStore) Dialect() batchsql.Dialect {
	return batchsql.StandardDialect{Style: batchsql.PlaceholderQuestion}
}

func (m *mockStore) BindParameters(params batchsql.Parameters) []any {
	return params.Positional
}

func (m *mockStore) ClassifyError(err error) store.ErrorKind {
	switch {
	case errors.Is(err, errDuplicate):
		return store.KindDuplicateID
	case errors.Is(err, errMisuse):
		return store.KindMisuse
	case errors.Is(err, errSyntax):
		return store.KindSyntax
	}
	return store.KindUnknown
}

func (m *mockStore) Location() string { return "/data/test.db" }
func (m *mockStore) Ping(_ context.Context) error { return nil }
func (m *mockStore) Close() error { return nil }

type mockTx struct {
	store *mockStore
}

func (t *mockTx) Execute(_ context.Context, statement string, args ...any) (*store.Result, error) {
	t.store.executed = append(t.store.executed, statement)
	t.store.args = append(t.store.args, args)
	if t.store.onExecute != nil {
		t.store.onExecute(statement)
	}
	if err, ok := t.store.failures[statement]; ok {
		return nil, err
	}
	if r, ok := t.store.results[statement]; ok {
		return r, nil
	}
	return &store.Result{RowsAffected: 1}, nil
}

func (t *mockTx) Commit(_ context.Context) error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.committed = true
	return nil
}

func (t *mockTx) Rollback(_ context.Context) error {
	t.store.rolledBack = true
	return nil
}

// mockDeleter records the deletes handed to it.
type mockDeleter struct {
	transactional bool
	err           error
	deleted       []string
}

func (d *mockDeleter) Delete(_ context.Context, _ store.Tx, statement string, _ []any) (*store.Result, error) {
	d.deleted = append(d.deleted, statement)
	if d.err != nil {
		return nil, d.err
	}
	return &store.Result{RowsAffected: 10}, nil
}

func (d *mockDeleter) Transactional() bool { return d.transactional }

func statements(t *testing.T, sqls ...string) []batchsql.RewrittenStatement {
	t.Helper()
	out := make([]batchsql.RewrittenStatement, 0, len(sqls))
	for _, s := range sqls {
		out = append(out, batchsql.Rewrite(s, batchsql.StandardDialect{}))
	}
	return out
}

func TestExecute_DuplicateIDIsSuppressed(t *testing.T) {
	selectResult := &store.Result{Columns: []string{"id"}, Rows: []map[string]any{{"id": int64(1)}}, RowCount: 1}
	s := &mockStore{
		failures: map[string]error{"INSERT INTO t (id) VALUES (1)": errDuplicate},
		results:  map[string]*store.Result{"SELECT id FROM t": selectResult},
	}
	core, logs := observer.New(zapcore.DebugLevel)
	exec := New(Config{Store: s, Logger: zap.New(core)})

	out, err := exec.Execute(context.Background(),
		statements(t, "INSERT INTO t (id) VALUES (1)", "SELECT id FROM t"),
		batchsql.Parameters{})
	require.NoError(t, err)

	assert.Same(t, selectResult, out.LastResult)
	assert.Equal(t, 1, out.Suppressed)
	assert.Empty(t, out.HardErrors)
	assert.True(t, s.committed)
	assert.Zero(t, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	require.Len(t, out.Statements, 2)
	assert.Equal(t, StatusSuppressed, out.Statements[0].Status)
	assert.Equal(t, store.KindDuplicateID, out.Statements[0].Kind)
}

func TestExecute_MisuseIsLoggedAtInfo(t *testing.T) {
	s := &mockStore{failures: map[string]error{"-- nothing": errMisuse}}
	core, logs := observer.New(zapcore.InfoLevel)
	exec := New(Config{Store: s, Logger: zap.New(core)})

	out, err := exec.Execute(context.Background(), statements(t, "-- nothing"), batchsql.Parameters{})
	require.NoError(t, err)

	assert.Nil(t, out.LastResult)
	assert.Equal(t, 1, out.Suppressed)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestExecute_HardErrorContinues(t *testing.T) {
	s := &mockStore{failures: map[string]error{"SELEC 1": errSyntax}}
	core, logs := observer.New(zapcore.InfoLevel)
	exec := New(Config{Store: s, Logger: zap.New(core)})

	out, err := exec.Execute(context.Background(),
		statements(t, "SELEC 1", "UPDATE t SET a = 1"),
		batchsql.Parameters{})
	require.NoError(t, err)

	require.Len(t, out.HardErrors, 1)
	assert.Equal(t, 0, out.HardErrors[0].Index)
	assert.Equal(t, store.KindSyntax, out.HardErrors[0].Kind)
	assert.ErrorIs(t, out.HardErrors[0], errSyntax)
	assert.Equal(t, []string{"SELEC 1", "UPDATE t SET a = 1"}, s.executed)
	require.NotNil(t, out.LastResult)
	assert.Equal(t, int64(1), out.LastResult.RowsAffected)
	assert.True(t, s.committed)

	errLogs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errLogs, 1)
	assert.Equal(t, "SELEC 1", errLogs[0].ContextMap()["statement"])
}

func TestExecute_BulkDeleteNeverReachesDriver(t *testing.T) {
	s := &mockStore{}
	deleter := &mockDeleter{err: errors.New("sqlite3 exited with code 1")}
	exec := New(Config{Store: s, Deleter: deleter, Logger: zap.NewNop()})

	out, err := exec.Execute(context.Background(),
		statements(t, "INSERT INTO t VALUES (1)", "delete from t", "DELETE  FROM u WHERE 1"),
		batchsql.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, []string{"INSERT INTO t VALUES (1)"}, s.executed)
	assert.Equal(t, []string{"delete from t", "DELETE  FROM u WHERE 1"}, deleter.deleted)
	assert.Equal(t, []int{1, 2}, out.NonTransactional)
	assert.Empty(t, out.HardErrors)
	assert.True(t, s.committed)

	// The insert stays the last result; deletes never replace it.
	require.NotNil(t, out.LastResult)
	assert.Equal(t, int64(1), out.LastResult.RowsAffected)
}

func TestExecute_TransactionalBulkDelete(t *testing.T) {
	s := &mockStore{failures: map[string]error{"delete from missing": errSyntax}}
	exec := New(Config{Store: s, Logger: zap.NewNop()})

	out, err := exec.Execute(context.Background(),
		statements(t, "delete from t", "delete from missing"),
		batchsql.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete from t", "delete from missing"}, s.executed)
	assert.Empty(t, out.NonTransactional)
	assert.Nil(t, out.LastResult)
	require.Len(t, out.HardErrors, 1)
	assert.Equal(t, 1, out.HardErrors[0].Index)
}

func TestExecute_BindsParameters(t *testing.T) {
	s := &mockStore{}
	exec := New(Config{Store: s})

	stmts := statements(t,
		"SELECT * FROM t WHERE a = ?",
		`INSERT INTO j (doc) VALUES ('[1,2]')`,
	)
	_, err := exec.Execute(context.Background(), stmts, batchsql.Parameters{Positional: []any{int64(7)}})
	require.NoError(t, err)

	require.Len(t, s.args, 2)
	assert.Equal(t, []any{int64(7)}, s.args[0])
	assert.Equal(t, []any{"[1,2]"}, s.args[1])
	assert.Equal(t, "INSERT INTO j (doc) VALUES (?)", s.executed[1])
}

func TestExecute_BeginFailure(t *testing.T) {
	s := &mockStore{beginErr: errors.New("database is locked")}
	exec := New(Config{Store: s})

	_, err := exec.Execute(context.Background(), statements(t, "SELECT 1"), batchsql.Parameters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, s.executed)
}

func TestExecute_CommitFailureRollsBack(t *testing.T) {
	s := &mockStore{commitErr: errors.New("disk I/O error")}
	exec := New(Config{Store: s})

	_, err := exec.Execute(context.Background(), statements(t, "SELECT 1"), batchsql.Parameters{})
	require.Error(t, err)
	assert.True(t, s.rolledBack)
	assert.False(t, s.committed)
}

func TestExecute_CancellationRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &mockStore{}
	s.onExecute = func(statement string) {
		if statement == "SELECT 1" {
			cancel()
		}
	}
	exec := New(Config{Store: s})

	_, err := exec.Execute(ctx, statements(t, "SELECT 1", "SELECT 2"), batchsql.Parameters{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"SELECT 1"}, s.executed)
	assert.True(t, s.rolledBack)
	assert.False(t, s.committed)
}

func TestOutcome_Succeeded(t *testing.T) {
	o := &Outcome{Statements: []StatementOutcome{
		{Status: StatusSuccess},
		{Status: StatusSuppressed},
		{Status: StatusExternal},
		{Status: StatusFailed},
	}}
	assert.Equal(t, 2, o.Succeeded())
}
