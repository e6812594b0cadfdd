package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
)

// Config holds the connection options shared by all adapters. Each adapter
// reads the fields it understands.
type Config struct {
	Type string

	// Path is the data file for file based stores.
	Path string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// BusyTimeoutMS bounds how long an embedded store waits on a lock.
	BusyTimeoutMS int
	// TxLock is "deferred" or "immediate" for embedded stores that lock the
	// whole file. Empty means deferred.
	TxLock string
	// MaxOpenConns caps the connection pool; zero keeps the driver default.
	MaxOpenConns int
}

// Open creates a store of cfg.Type using the registered adapter.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if !IsRegistered(cfg.Type) {
		available := make([]string, 0)
		for _, info := range RegisteredAdapters() {
			available = append(available, info.Type)
		}
		return nil, fmt.Errorf("%w: %s (available: %s)",
			apperrors.ErrUnsupportedStore, cfg.Type, strings.Join(available, ", "))
	}
	s, err := GetFactory(cfg.Type)(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	return s, nil
}
