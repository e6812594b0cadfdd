package batch

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestParseBulkDeleteMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BulkDeleteMode
		wantErr bool
	}{
		{"", BulkDeleteExternal, false},
		{"external", BulkDeleteExternal, false},
		{" Transactional ", BulkDeleteTransactional, false},
		{"inline", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBulkDeleteMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestExternalDeleter_Defaults(t *testing.T) {
	d := NewExternalDeleter(ExternalDeleterConfig{Location: "/var/lib/app/data.db"}, zap.NewNop())

	assert.Equal(t, "sqlite3", d.command)
	assert.False(t, d.Transactional())
	assert.Equal(t,
		[]string{"/var/lib/app/data.db", "delete from t"},
		d.expandArgs("delete from t"))
}

func TestExternalDeleter_ExpandArgs(t *testing.T) {
	d := NewExternalDeleter(ExternalDeleterConfig{
		Command:  "psql",
		Args:     []string{"--dbname={location}", "-c", "{statement}", "-v", "ON_ERROR_STOP=1"},
		Location: "batch",
	}, zap.NewNop())

	// The statement is passed as one argument; its content is not re-expanded.
	got := d.expandArgs("delete from t where name = '{location}'")
	assert.Equal(t, []string{"--dbname=batch", "-c", "delete from t where name = '{location}'", "-v", "ON_ERROR_STOP=1"}, got)
}

func TestExternalDeleter_LogsOutput(t *testing.T) {
	requireCommand(t, "echo")

	core, logs := observer.New(zapcore.InfoLevel)
	d := NewExternalDeleter(ExternalDeleterConfig{
		Command:  "echo",
		Location: "/tmp/data.db",
		Timeout:  5 * time.Second,
	}, zap.New(core))

	result, err := d.Delete(context.Background(), nil, "delete from t", nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	entries := logs.FilterMessage("Bulk delete output").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/tmp/data.db delete from t", entries[0].ContextMap()["stdout"])
}

func TestExternalDeleter_WarnsAboutUnboundParameters(t *testing.T) {
	requireCommand(t, "true")

	core, logs := observer.New(zapcore.WarnLevel)
	d := NewExternalDeleter(ExternalDeleterConfig{Command: "true", Location: "x"}, zap.New(core))

	_, err := d.Delete(context.Background(), nil, "delete from t where id = :id", []any{int64(7)})
	require.NoError(t, err)

	entries := logs.FilterMessage("Bulk delete parameters are not passed to the external client").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["parameters"])

	_, err = d.Delete(context.Background(), nil, "delete from t", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestExternalDeleter_Failure(t *testing.T) {
	requireCommand(t, "false")

	d := NewExternalDeleter(ExternalDeleterConfig{Command: "false", Location: "x"}, zap.NewNop())
	_, err := d.Delete(context.Background(), nil, "delete from t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 1")
}

func TestExternalDeleter_MissingCommand(t *testing.T) {
	d := NewExternalDeleter(ExternalDeleterConfig{Command: "definitely-not-a-real-binary-4f1c"}, zap.NewNop())
	_, err := d.Delete(context.Background(), nil, "delete from t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run")
}

func TestExternalDeleter_Timeout(t *testing.T) {
	requireCommand(t, "sleep")

	d := NewExternalDeleter(ExternalDeleterConfig{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	}, zap.NewNop())

	_, err := d.Delete(context.Background(), nil, "delete from t", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_ExternalFailureStillSucceeds(t *testing.T) {
	requireCommand(t, "false")

	s := &mockStore{}
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	exec := New(Config{
		Store:   s,
		Deleter: NewExternalDeleter(ExternalDeleterConfig{Command: "false", Location: s.Location()}, logger),
		Logger:  logger,
	})

	out, err := exec.Execute(context.Background(), statements(t, "delete from t", "SELECT 1"), batchsql.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, []string{"SELECT 1"}, s.executed)
	assert.Equal(t, []int{0}, out.NonTransactional)
	assert.Empty(t, out.HardErrors)
	assert.Equal(t, StatusFailed, out.Statements[0].Status)
	assert.Equal(t, 1, logs.FilterMessage("Bulk delete failed outside the transaction").Len())
	assert.True(t, s.committed)
}
