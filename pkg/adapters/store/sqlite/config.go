package sqlite

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
)

// Config contains SQLite-specific connection options.
type Config struct {
	Path          string
	BusyTimeoutMS int
	MaxOpenConns  int
	TxLock        string
}

// Transaction lock modes understood by the driver.
const (
	TxLockDeferred  = "deferred"
	TxLockImmediate = "immediate"
)

// DefaultBusyTimeoutMS returns the default lock wait in milliseconds.
func DefaultBusyTimeoutMS() int {
	return 5000
}

// FromStoreConfig extracts the SQLite options from a generic store config.
func FromStoreConfig(cfg store.Config) (*Config, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	c := &Config{
		Path:          cfg.Path,
		BusyTimeoutMS: cfg.BusyTimeoutMS,
		MaxOpenConns:  cfg.MaxOpenConns,
		TxLock:        strings.ToLower(cfg.TxLock),
	}
	switch c.TxLock {
	case "":
		c.TxLock = TxLockDeferred
	case TxLockDeferred, TxLockImmediate:
	default:
		return nil, fmt.Errorf("unknown tx lock %q", cfg.TxLock)
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = DefaultBusyTimeoutMS()
	}
	if c.Path == ":memory:" {
		// Each connection to :memory: is a separate database.
		c.MaxOpenConns = 1
	}
	return c, nil
}

// DSN builds the modernc.org/sqlite data source name.
//
// A deferred transaction takes the write lock at its first write, which lets
// an external client write to the file before that. An immediate one takes it
// at BEGIN so concurrent batches queue on busy_timeout instead of failing on
// lock upgrade, but then no other process can write until the batch ends.
func (c *Config) DSN() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeoutMS))
	q.Add("_pragma", "foreign_keys(1)")
	if c.Path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", c.TxLock)
	return "file:" + c.Path + "?" + q.Encode()
}
