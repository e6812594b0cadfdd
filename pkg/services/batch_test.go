package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	_ "github.com/ekaya-inc/ekaya-batch/pkg/adapters/store/sqlite"
	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-batch/pkg/audit"
	"github.com/ekaya-inc/ekaya-batch/pkg/batch"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

type mockExecutor struct {
	stmts  []batchsql.RewrittenStatement
	params batchsql.Parameters
	calls  int
	err    error
}

func (m *mockExecutor) Execute(_ context.Context, stmts []batchsql.RewrittenStatement, params batchsql.Parameters) (*batch.Outcome, error) {
	m.calls++
	m.stmts = stmts
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return &batch.Outcome{}, nil
}

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBatchService_RejectsEmptyQuery(t *testing.T) {
	exec := &mockExecutor{}
	svc := NewBatchService(openSQLite(t), exec, nil, BatchServiceConfig{}, zap.NewNop())

	_, err := svc.Run(context.Background(), &RunBatchRequest{Script: batchsql.ScriptRequest{Query: "  "}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, "No query specified", apperrors.PublicMessage(err))
	assert.Zero(t, exec.calls)
}

func TestBatchService_DecodesSplitsAndRewrites(t *testing.T) {
	exec := &mockExecutor{}
	svc := NewBatchService(openSQLite(t), exec, nil, BatchServiceConfig{}, zap.NewNop())

	script := "INSERT INTO t VALUES ('a[SEMICOLON]b');\nINSERT INTO j VALUES ('[1,2]');\ndelete from t"
	params := batchsql.Parameters{Named: map[string]any{"x": int64(1)}}
	result, err := svc.Run(context.Background(), &RunBatchRequest{
		Script: batchsql.ScriptRequest{Query: script, Parameters: params},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.BatchID)

	require.Len(t, exec.stmts, 3)
	assert.Equal(t, "INSERT INTO t VALUES ('a;b')", exec.stmts[0].SQL)
	assert.Equal(t, "INSERT INTO j VALUES (?)", exec.stmts[1].SQL)
	assert.Equal(t, []any{"[1,2]"}, exec.stmts[1].BoundParams)
	assert.True(t, exec.stmts[2].BulkDelete)
	assert.Equal(t, params, exec.params)
}

func TestBatchService_DeflateEncoding(t *testing.T) {
	exec := &mockExecutor{}
	svc := NewBatchService(openSQLite(t), exec, nil, BatchServiceConfig{Encoding: batchsql.EncodingDeflate}, zap.NewNop())

	payload, err := batchsql.EncodePayload("SELECT 1;\nSELECT 2", batchsql.EncodingDeflate)
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), &RunBatchRequest{Script: batchsql.ScriptRequest{Query: payload}})
	require.NoError(t, err)
	require.Len(t, exec.stmts, 2)

	_, err = svc.Run(context.Background(), &RunBatchRequest{Script: batchsql.ScriptRequest{Query: "not base64!"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 1, exec.calls)
}

func TestBatchService_ExecutorFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("failed to commit batch: disk I/O error")}
	svc := NewBatchService(openSQLite(t), exec, nil, BatchServiceConfig{}, zap.NewNop())

	_, err := svc.Run(context.Background(), &RunBatchRequest{Script: batchsql.ScriptRequest{Query: "SELECT 1"}})
	require.Error(t, err)
	assert.False(t, apperrors.IsRequestError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestBatchService_AuditsParametersAndExecution(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	exec := &mockExecutor{}
	svc := NewBatchService(openSQLite(t), exec, audit.NewSecurityAuditor(logger), BatchServiceConfig{
		StoreType:       "sqlite",
		CheckParameters: true,
		AuditExecutions: true,
	}, logger)

	_, err := svc.Run(context.Background(), &RunBatchRequest{
		Script: batchsql.ScriptRequest{
			Query:      "SELECT * FROM users WHERE name = :name",
			Parameters: batchsql.Parameters{Named: map[string]any{"name": "' OR '1'='1"}},
		},
		ClientIP: "10.1.2.3",
	})
	require.NoError(t, err)

	// Flagged values are audited, not rejected.
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 1, logs.FilterMessage("SQL injection attempt detected").Len())
	assert.Equal(t, 1, logs.FilterMessage("Batch executed").Len())
}

func TestBatchService_EndToEndSQLite(t *testing.T) {
	st := openSQLite(t)
	svc := NewBatchService(st, batch.New(batch.Config{Store: st}), nil, BatchServiceConfig{}, zap.NewNop())

	run := func(script string) *batch.Outcome {
		t.Helper()
		res, err := svc.Run(context.Background(), &RunBatchRequest{Script: batchsql.ScriptRequest{Query: script}})
		require.NoError(t, err)
		return res.Outcome
	}

	run("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);\nINSERT INTO users VALUES (1, 'ada')")
	out := run("INSERT INTO users VALUES (1, 'ada');\nSELECT name FROM users")

	assert.Equal(t, 1, out.Suppressed)
	require.NotNil(t, out.LastResult)
	assert.Equal(t, []map[string]any{{"name": "ada"}}, out.LastResult.Rows)
}
