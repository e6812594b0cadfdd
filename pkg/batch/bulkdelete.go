package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
)

// BulkDeleteMode selects how DELETE FROM statements are run.
type BulkDeleteMode string

const (
	// BulkDeleteExternal hands the statement to an external client process.
	BulkDeleteExternal BulkDeleteMode = "external"
	// BulkDeleteTransactional runs the statement in the batch transaction.
	BulkDeleteTransactional BulkDeleteMode = "transactional"
)

// ParseBulkDeleteMode validates a bulk delete mode from configuration.
func ParseBulkDeleteMode(mode string) (BulkDeleteMode, error) {
	switch BulkDeleteMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", BulkDeleteExternal:
		return BulkDeleteExternal, nil
	case BulkDeleteTransactional:
		return BulkDeleteTransactional, nil
	}
	return "", fmt.Errorf("unknown bulk delete mode %q", mode)
}

// Placeholders substituted in the external client arguments.
const (
	LocationArg  = "{location}"
	StatementArg = "{statement}"
)

// BulkDeleter runs the statements that start with DELETE FROM.
type BulkDeleter interface {
	Delete(ctx context.Context, tx store.Tx, statement string, args []any) (*store.Result, error)

	// Transactional reports whether Delete runs inside tx. Failures of a
	// non-transactional deleter are never escalated.
	Transactional() bool
}

// TransactionalDeleter runs deletes through the batch transaction like any
// other statement.
type TransactionalDeleter struct{}

var _ BulkDeleter = TransactionalDeleter{}

func (TransactionalDeleter) Delete(ctx context.Context, tx store.Tx, statement string, args []any) (*store.Result, error) {
	return tx.Execute(ctx, statement, args...)
}

func (TransactionalDeleter) Transactional() bool { return true }

// ExternalDeleterConfig configures an ExternalDeleter.
type ExternalDeleterConfig struct {
	// Command is the client executable, "sqlite3" by default.
	Command string
	// Args may reference {location} and {statement}.
	Args []string
	// Location of the store the client operates on.
	Location string
	// Timeout bounds one invocation. Zero means only the request context.
	Timeout time.Duration
}

// DefaultExternalArgs runs the statement against the store file.
var DefaultExternalArgs = []string{LocationArg, StatementArg}

// ExternalDeleter runs each delete as a separate client process against the
// store location. No shell is involved.
type ExternalDeleter struct {
	command  string
	args     []string
	location string
	timeout  time.Duration
	logger   *zap.Logger
}

var _ BulkDeleter = (*ExternalDeleter)(nil)

// NewExternalDeleter creates an ExternalDeleter.
func NewExternalDeleter(cfg ExternalDeleterConfig, logger *zap.Logger) *ExternalDeleter {
	command := cfg.Command
	if command == "" {
		command = "sqlite3"
	}
	args := cfg.Args
	if len(args) == 0 {
		args = DefaultExternalArgs
	}
	return &ExternalDeleter{
		command:  command,
		args:     args,
		location: cfg.Location,
		timeout:  cfg.Timeout,
		logger:   logger.Named("bulk_delete"),
	}
}

func (d *ExternalDeleter) Transactional() bool { return false }

// Delete runs the client. Output is logged; stdout at Info, stderr at Warn.
// The tx is not used and args cannot be bound: the client has its own
// connection and receives the statement text only.
func (d *ExternalDeleter) Delete(ctx context.Context, _ store.Tx, statement string, args []any) (*store.Result, error) {
	if len(args) > 0 {
		d.logger.Warn("Bulk delete parameters are not passed to the external client",
			zap.String("command", d.command),
			zap.Int("parameters", len(args)),
			zap.String("statement", logging.SanitizeQuery(statement)))
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.command, d.expandArgs(statement)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	fields := []zap.Field{
		zap.String("command", d.command),
		zap.String("statement", logging.SanitizeQuery(statement)),
		zap.Duration("duration", time.Since(start)),
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		d.logger.Info("Bulk delete output", append(fields, zap.String("stdout", out))...)
	}
	if out := strings.TrimSpace(stderr.String()); out != "" {
		d.logger.Warn("Bulk delete error output", append(fields, zap.String("stderr", out))...)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s did not finish: %w", d.command, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with code %d", d.command, exitErr.ExitCode())
		}
		return nil, fmt.Errorf("failed to run %s: %w", d.command, err)
	}
	return nil, nil
}

func (d *ExternalDeleter) expandArgs(statement string) []string {
	r := strings.NewReplacer(LocationArg, d.location, StatementArg, statement)
	out := make([]string, len(d.args))
	for i, a := range d.args {
		out[i] = r.Replace(a)
	}
	return out
}
