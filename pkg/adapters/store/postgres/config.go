package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	MaxConns int
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromStoreConfig extracts the PostgreSQL options from a generic store config.
func FromStoreConfig(cfg store.Config) (*Config, error) {
	c := &Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
		MaxConns: cfg.MaxOpenConns,
	}
	if c.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if c.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if c.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort()
	}
	if c.SSLMode == "" {
		c.SSLMode = DefaultSSLMode()
	}
	return c, nil
}

// ConnectionString builds a PostgreSQL URL. User supplied fields are escaped
// so passwords containing @, / or # survive URL parsing.
func (c *Config) ConnectionString() string {
	s := fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		url.QueryEscape(c.Database),
		c.SSLMode,
	)
	if c.MaxConns > 0 {
		s += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	return s
}

// Location is the connection URL without the password.
func (c *Config) Location() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.User(c.User),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
