package mssql

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/config"
)

// Config contains SQL Server connection options. Only SQL authentication is
// supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxOpenConns           int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromStoreConfig extracts the SQL Server options from a generic store config.
// The store ssl_mode maps onto encryption: "disable" turns it off and
// "trust" keeps it on without verifying the server certificate.
func FromStoreConfig(cfg store.Config) (*Config, error) {
	c := &Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		Database:          cfg.Database,
		Username:          cfg.User,
		Password:          cfg.Password,
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
		MaxOpenConns:      cfg.MaxOpenConns,
	}
	if c.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if c.Username == "" {
		return nil, fmt.Errorf("user is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort()
	}
	switch cfg.SSLMode {
	case "disable":
		c.Encrypt = false
	case "trust":
		c.TrustServerCertificate = true
	}
	return c, nil
}

// ConnectionString builds a sqlserver:// URL for go-mssqldb.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", fmt.Sprintf("%t", c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		query.Encode(),
	)
}

// Location is the server and database without credentials.
func (c *Config) Location() string {
	return fmt.Sprintf("sqlserver://%s:%d?database=%s", c.Host, c.Port, url.QueryEscape(c.Database))
}
