package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_PostsScriptAndPrintsResult(t *testing.T) {
	var got batchsql.ScriptRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"columns":["n"],"rows":[{"n":1}],"row_count":1,"rows_affected":0}}`))
	}))
	defer srv.Close()

	script := writeFile(t, "script.sql", "SELECT 1 AS n")
	params := writeFile(t, "params.json", `{"id": 7}`)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"batchctl", "run", "--url", srv.URL, "--token", "tok", "--params", params, script,
	}, strings.NewReader(""), &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "SELECT 1 AS n", got.Query)
	assert.Equal(t, int64(7), got.Parameters.Named["id"])
	assert.Contains(t, out.String(), `"row_count": 1`)
}

func TestRun_ReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"No query specified","extensions":{"code":"Bad Request"}}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{"batchctl", "run", "--url", srv.URL, "-"},
		strings.NewReader(" "), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No query specified")
}

func TestEncode_DeflateWithMarkers(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"batchctl", "--deflate", "--encode-markers", "encode", "-"},
		strings.NewReader("INSERT INTO t VALUES ('a;b');\nSELECT 1"), &out)
	require.NoError(t, err)

	script, err := batchsql.DecodePayload(
		batchsql.ScriptRequest{Query: strings.TrimSpace(out.String())}, batchsql.EncodingDeflate)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t VALUES ('a[SEMICOLON]b');\nSELECT 1", script)
}

func TestEncode_RejectsUnknownEncoding(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"batchctl", "--encoding", "gzip", "encode", "-"},
		strings.NewReader("SELECT 1"), &out)
	assert.Error(t, err)
}
