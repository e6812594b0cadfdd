package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
	_ "github.com/ekaya-inc/ekaya-batch/pkg/adapters/store/mssql"
	_ "github.com/ekaya-inc/ekaya-batch/pkg/adapters/store/postgres"
	_ "github.com/ekaya-inc/ekaya-batch/pkg/adapters/store/sqlite"
	"github.com/ekaya-inc/ekaya-batch/pkg/audit"
	"github.com/ekaya-inc/ekaya-batch/pkg/auth"
	"github.com/ekaya-inc/ekaya-batch/pkg/batch"
	"github.com/ekaya-inc/ekaya-batch/pkg/config"
	"github.com/ekaya-inc/ekaya-batch/pkg/handlers"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	"github.com/ekaya-inc/ekaya-batch/pkg/middleware"
	"github.com/ekaya-inc/ekaya-batch/pkg/retry"
	"github.com/ekaya-inc/ekaya-batch/pkg/services"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store_type", cfg.Store.Type),
		zap.String("encoding", cfg.Batch.Encoding),
		zap.String("marker_protocol", cfg.Batch.MarkerProtocol),
		zap.String("splitter", cfg.Batch.Splitter),
		zap.String("bulk_delete_mode", cfg.Batch.BulkDelete.Mode),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}()

	deleter, err := newDeleter(cfg, st, logger)
	if err != nil {
		return err
	}
	executor := batch.New(batch.Config{Store: st, Deleter: deleter, Logger: logger})

	// Validate has already accepted these values.
	encoding, _ := batchsql.ParseEncoding(cfg.Batch.Encoding)
	markers, _ := batchsql.ParseMarkerProtocol(cfg.Batch.MarkerProtocol)
	splitter, _ := batchsql.NewSplitter(batchsql.SplitMode(cfg.Batch.Splitter))

	auditor := audit.NewSecurityAuditor(logger)
	batchService := services.NewBatchService(st, executor, auditor, services.BatchServiceConfig{
		StoreType:       cfg.Store.Type,
		Encoding:        encoding,
		Markers:         markers,
		Splitter:        splitter,
		CheckParameters: cfg.Audit.CheckParameters,
		AuditExecutions: cfg.Audit.LogExecutions,
	}, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, st, logger)
	healthHandler.RegisterRoutes(mux)

	queryHandler := handlers.NewQueryHandler(batchService, auditor, handlers.QueryHandlerConfig{
		Resource:     cfg.Auth.Resource,
		MaxBodyBytes: cfg.Batch.MaxBodyBytes,
	}, logger)
	queryHandler.RegisterRoutes(mux, cfg.Server.QueryPath, authMiddleware)

	handler := middleware.RequestID(middleware.RequestLogger(logger)(mux))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		useTLS := cfg.Server.TLSCertPath != ""
		logger.Info("Starting ekaya-batch",
			zap.String("addr", server.Addr),
			zap.String("query_path", cfg.Server.QueryPath),
			zap.Bool("tls", useTLS))

		var err error
		if useTLS {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openStore opens and pings the configured store, retrying while it is
// still coming up.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	storeCfg := store.Config{
		Type:          cfg.Store.Type,
		Path:          cfg.Store.Path,
		Host:          cfg.Store.Host,
		Port:          cfg.Store.Port,
		User:          cfg.Store.User,
		Password:      cfg.Store.Password,
		Database:      cfg.Store.Database,
		SSLMode:       cfg.Store.SSLMode,
		BusyTimeoutMS: cfg.Store.BusyTimeoutMS,
		TxLock:        cfg.Store.TxLock,
		MaxOpenConns:  cfg.Store.MaxOpenConns,
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("Store not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}

	st, err := retry.DoWithResult(ctx, retryCfg, func() (store.Store, error) {
		s, err := store.Open(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to ping %s store: %w", storeCfg.Type, err)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Store connected",
		zap.String("type", storeCfg.Type),
		zap.String("location", st.Location()))
	return st, nil
}

func newDeleter(cfg *config.Config, st store.Store, logger *zap.Logger) (batch.BulkDeleter, error) {
	mode, err := batch.ParseBulkDeleteMode(cfg.Batch.BulkDelete.Mode)
	if err != nil {
		return nil, err
	}
	if mode == batch.BulkDeleteTransactional {
		return batch.TransactionalDeleter{}, nil
	}
	return batch.NewExternalDeleter(batch.ExternalDeleterConfig{
		Command:  cfg.Batch.BulkDelete.Command,
		Args:     cfg.Batch.BulkDelete.Args,
		Location: st.Location(),
		Timeout:  cfg.Batch.BulkDelete.Timeout,
	}, logger), nil
}
