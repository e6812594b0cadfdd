package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-batch/pkg/audit"
	"github.com/ekaya-inc/ekaya-batch/pkg/batch"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// BatchService turns a request payload into an executed batch.
type BatchService interface {
	Run(ctx context.Context, req *RunBatchRequest) (*BatchResult, error)
}

// BatchExecutor runs rewritten statements. *batch.Executor implements it.
type BatchExecutor interface {
	Execute(ctx context.Context, stmts []batchsql.RewrittenStatement, params batchsql.Parameters) (*batch.Outcome, error)
}

// RunBatchRequest is a decoded request body plus the caller's address.
type RunBatchRequest struct {
	Script   batchsql.ScriptRequest
	ClientIP string
}

// BatchResult is what a completed batch reports.
type BatchResult struct {
	BatchID uuid.UUID
	Outcome *batch.Outcome
}

// BatchServiceConfig holds the per-deployment protocol settings.
type BatchServiceConfig struct {
	StoreType string
	Encoding  batchsql.Encoding
	Markers   batchsql.MarkerProtocol
	Splitter  batchsql.Splitter

	// CheckParameters audits parameter values with libinjection.
	CheckParameters bool
	// AuditExecutions logs a batch_execution event per batch.
	AuditExecutions bool
}

type batchService struct {
	store    store.Store
	executor BatchExecutor
	auditor  *audit.SecurityAuditor
	cfg      BatchServiceConfig
	logger   *zap.Logger
}

// NewBatchService creates a batch service with dependencies.
func NewBatchService(
	st store.Store,
	executor BatchExecutor,
	auditor *audit.SecurityAuditor,
	cfg BatchServiceConfig,
	logger *zap.Logger,
) BatchService {
	if cfg.Splitter == nil {
		cfg.Splitter, _ = batchsql.NewSplitter(batchsql.SplitDelimiter)
	}
	return &batchService{
		store:    st,
		executor: executor,
		auditor:  auditor,
		cfg:      cfg,
		logger:   logger.Named("batch_service"),
	}
}

// Run decodes, splits, rewrites and executes the script of req.
// Input problems wrap apperrors.ErrInvalidInput and nothing is executed.
func (s *batchService) Run(ctx context.Context, req *RunBatchRequest) (*BatchResult, error) {
	script, err := batchsql.DecodePayload(req.Script, s.cfg.Encoding)
	if err != nil {
		return nil, err
	}

	parts, err := s.cfg.Splitter.Split(script)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to split script: %v", apperrors.ErrInvalidInput, err)
	}
	stmts := batchsql.RewriteAll(parts, s.cfg.Markers, s.store.Dialect())

	batchID := uuid.New()
	if s.cfg.CheckParameters && s.auditor != nil && !req.Script.Parameters.IsEmpty() {
		for _, flagged := range batchsql.CheckParameters(req.Script.Parameters) {
			value, _ := flagged.ParamValue.(string)
			s.auditor.LogInjectionAttempt(ctx, batchID, audit.SQLInjectionDetails{
				ParamName:   flagged.ParamName,
				ParamValue:  value,
				Fingerprint: flagged.Fingerprint,
			}, req.ClientIP)
		}
	}

	start := time.Now()
	outcome, err := s.executor.Execute(ctx, stmts, req.Script.Parameters)
	if err != nil {
		s.logger.Error("Batch failed",
			zap.String("batch_id", batchID.String()),
			zap.Int("statements", len(stmts)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("batch %s failed: %w", batchID, err)
	}
	elapsed := time.Since(start)

	s.logger.Info("Batch completed",
		zap.String("batch_id", batchID.String()),
		zap.Int("statements", len(stmts)),
		zap.Int("suppressed", outcome.Suppressed),
		zap.Int("failed", len(outcome.HardErrors)),
		zap.Ints("non_transactional", outcome.NonTransactional),
		zap.Duration("duration", elapsed))

	if s.cfg.AuditExecutions && s.auditor != nil {
		s.auditor.LogBatchExecution(ctx, batchID, audit.BatchExecutionDetails{
			Store:            s.cfg.StoreType,
			Statements:       len(stmts),
			Succeeded:        outcome.Succeeded(),
			Suppressed:       outcome.Suppressed,
			Failed:           len(outcome.HardErrors),
			NonTransactional: len(outcome.NonTransactional),
			DurationMS:       elapsed.Milliseconds(),
		}, req.ClientIP)
	}

	return &BatchResult{BatchID: batchID, Outcome: outcome}, nil
}
