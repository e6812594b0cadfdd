package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-batch/pkg/batch"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// DefaultConfigPath is read when CONFIG_PATH is not set.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-batch.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Store  StoreConfig  `yaml:"store"`
	Batch  BatchConfig  `yaml:"batch"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	BindAddr  string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"8055"`
	QueryPath string `yaml:"query_path" env:"QUERY_PATH" env-default:"/query"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.ekaya.ai=https://auth.ekaya.ai/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience, when set, must appear in the token's aud claim.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`

	// Resource is the collection whose CRUD grants allow running batches.
	Resource string `yaml:"resource" env:"AUTH_RESOURCE" env-default:"query"`
}

// StoreConfig selects and locates the database batches run against.
type StoreConfig struct {
	Type     string `yaml:"type" env:"STORE_TYPE" env-default:"sqlite"`
	Path     string `yaml:"path" env:"STORE_PATH" env-default:"data/batch.db"`
	Host     string `yaml:"host" env:"STORE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"STORE_PORT" env-default:"0"`
	User     string `yaml:"user" env:"STORE_USER" env-default:""`
	Password string `yaml:"-" env:"STORE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"STORE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"STORE_SSL_MODE" env-default:"disable"`

	BusyTimeoutMS int `yaml:"busy_timeout_ms" env:"STORE_BUSY_TIMEOUT_MS" env-default:"5000"`
	// TxLock is deferred or immediate (sqlite only). External bulk deletes
	// need deferred so the client can take the write lock.
	TxLock string `yaml:"tx_lock" env:"STORE_TX_LOCK" env-default:"deferred"`
	MaxOpenConns  int `yaml:"max_open_conns" env:"STORE_MAX_OPEN_CONNS" env-default:"0"`
}

// BatchConfig holds the wire protocol and execution settings of batches.
type BatchConfig struct {
	// Encoding of the query field: plain or deflate.
	Encoding string `yaml:"encoding" env:"BATCH_ENCODING" env-default:"plain"`
	// MarkerProtocol is v1 ([SEMICOLON] and [NEWLINE]) or v2 ([SEMICOLON] only).
	MarkerProtocol string `yaml:"marker_protocol" env:"BATCH_MARKER_PROTOCOL" env-default:"v1"`
	// Splitter is delimiter (split on ";\n") or lexer.
	Splitter string `yaml:"splitter" env:"BATCH_SPLITTER" env-default:"delimiter"`

	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"BATCH_MAX_BODY_BYTES" env-default:"33554432"`

	BulkDelete BulkDeleteConfig `yaml:"bulk_delete"`
}

// BulkDeleteConfig controls how DELETE FROM statements run.
type BulkDeleteConfig struct {
	Mode    string        `yaml:"mode" env:"BULK_DELETE_MODE" env-default:"external"`
	Command string        `yaml:"command" env:"BULK_DELETE_COMMAND" env-default:"sqlite3"`
	Args    []string      `yaml:"args" env:"BULK_DELETE_ARGS" env-default:"{location},{statement}"`
	Timeout time.Duration `yaml:"timeout" env:"BULK_DELETE_TIMEOUT" env-default:"5m"`
}

// AuditConfig toggles security audit events.
type AuditConfig struct {
	CheckParameters bool `yaml:"check_parameters" env:"AUDIT_CHECK_PARAMETERS" env-default:"true"`
	LogExecutions   bool `yaml:"log_executions" env:"AUDIT_LOG_EXECUTIONS" env-default:"true"`
}

// Load reads configuration from the file named by CONFIG_PATH (config.yaml
// by default) with environment variable overrides. A missing file is not an
// error; the environment and defaults are used alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerations and paired settings.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Server.QueryPath, "/") {
		return fmt.Errorf("server.query_path must start with /, got %q", c.Server.QueryPath)
	}
	if c.Store.Type == "" {
		return fmt.Errorf("store.type is required")
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for sqlite")
	}
	if c.Batch.MaxBodyBytes <= 0 {
		return fmt.Errorf("batch.max_body_bytes must be positive")
	}
	if _, err := batchsql.ParseEncoding(c.Batch.Encoding); err != nil {
		return err
	}
	if _, err := batchsql.ParseMarkerProtocol(c.Batch.MarkerProtocol); err != nil {
		return err
	}
	if _, err := batchsql.NewSplitter(batchsql.SplitMode(c.Batch.Splitter)); err != nil {
		return err
	}
	mode, err := batch.ParseBulkDeleteMode(c.Batch.BulkDelete.Mode)
	if err != nil {
		return err
	}
	if err := c.validateBulkDelete(mode); err != nil {
		return err
	}
	if c.Auth.Resource == "" {
		return fmt.Errorf("auth.resource is required")
	}
	return nil
}

// DefaultBulkDeleteCommand is the client external bulk deletes run by default.
// It only understands sqlite files.
const DefaultBulkDeleteCommand = "sqlite3"

// validateBulkDelete checks that an external bulk delete client can reach
// the configured store.
func (c *Config) validateBulkDelete(mode batch.BulkDeleteMode) error {
	txLock := strings.ToLower(c.Store.TxLock)
	switch txLock {
	case "", "deferred", "immediate":
	default:
		return fmt.Errorf("store.tx_lock must be deferred or immediate, got %q", c.Store.TxLock)
	}

	if mode != batch.BulkDeleteExternal {
		return nil
	}
	if c.Batch.BulkDelete.Command == "" {
		return fmt.Errorf("batch.bulk_delete.command is required in external mode")
	}
	if c.Store.Type != "sqlite" && c.Batch.BulkDelete.Command == DefaultBulkDeleteCommand {
		return fmt.Errorf("batch.bulk_delete: %s cannot open a %s store; use mode transactional or configure a client for it",
			DefaultBulkDeleteCommand, c.Store.Type)
	}
	if c.Store.Type == "sqlite" && txLock == "immediate" {
		return fmt.Errorf("store.tx_lock immediate keeps external bulk deletes from taking the write lock; use deferred or bulk_delete mode transactional")
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.Server.TLSCertPath != ""
	keySet := c.Server.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.Server.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.Server.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}
	return nil
}

// Addr returns the listen address of the server.
func (c *ServerConfig) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, url, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(url)
		}
	}
	return endpoints
}
