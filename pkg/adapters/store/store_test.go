package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
)

func TestRegistry(t *testing.T) {
	var gotCfg Config
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: "test-registry", DisplayName: "Test"},
		Factory: func(ctx context.Context, cfg Config) (Store, error) {
			gotCfg = cfg
			return nil, errors.New("not a real store")
		},
	})

	if !IsRegistered("test-registry") {
		t.Fatal("expected test-registry to be registered")
	}
	if GetFactory("missing") != nil {
		t.Error("expected nil factory for unregistered type")
	}

	found := false
	for _, info := range RegisteredAdapters() {
		if info.Type == "test-registry" {
			found = true
		}
	}
	if !found {
		t.Error("expected test-registry in RegisteredAdapters")
	}

	_, err := Open(context.Background(), Config{Type: "test-registry", Path: "x"})
	if err == nil {
		t.Fatal("expected factory error to be returned")
	}
	if gotCfg.Path != "x" {
		t.Errorf("expected config to be passed to factory, got %+v", gotCfg)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	Register(AdapterRegistration{Info: AdapterInfo{Type: "test-listed"}})

	_, err := Open(context.Background(), Config{Type: "oracle"})
	if !errors.Is(err, apperrors.ErrUnsupportedStore) {
		t.Errorf("expected ErrUnsupportedStore, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "test-listed") {
		t.Errorf("expected registered types in error, got %v", err)
	}
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT 1", true},
		{"  with x as (select 1) select * from x", true},
		{"PRAGMA table_info(t)", true},
		{"VALUES (1), (2)", true},
		{"INSERT INTO t VALUES (1) RETURNING id", true},
		{"INSERT INTO t VALUES (1)", false},
		{"UPDATE t SET returning_customer = 1", false},
		{"CREATE TABLE t (id INT)", false},
	}

	for _, tt := range tests {
		if got := ReturnsRows(tt.stmt); got != tt.want {
			t.Errorf("ReturnsRows(%q) = %v, want %v", tt.stmt, got, tt.want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	if !KindDuplicateID.Suppressed() || !KindMisuse.Suppressed() {
		t.Error("duplicate id and misuse should be suppressed")
	}
	for _, k := range []ErrorKind{KindUnknown, KindConstraint, KindSyntax} {
		if k.Suppressed() {
			t.Errorf("%s should not be suppressed", k)
		}
	}
	if KindDuplicateID.String() != "duplicate_id" || ErrorKind(99).String() != "unknown" {
		t.Error("unexpected ErrorKind strings")
	}
}

func TestIsIDColumn(t *testing.T) {
	for _, target := range []string{"users.id", "customer_id", "ID", "orders.ownerId"} {
		if !IsIDColumn(target) {
			t.Errorf("expected %q to be an id column", target)
		}
	}
	for _, target := range []string{"users.email", "idx_name", ""} {
		if IsIDColumn(target) {
			t.Errorf("did not expect %q to be an id column", target)
		}
	}
}
