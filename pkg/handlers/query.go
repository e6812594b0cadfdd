package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-batch/pkg/audit"
	"github.com/ekaya-inc/ekaya-batch/pkg/auth"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
	"github.com/ekaya-inc/ekaya-batch/pkg/middleware"
	"github.com/ekaya-inc/ekaya-batch/pkg/services"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

// QueryHandler serves the batch endpoint.
type QueryHandler struct {
	batchService services.BatchService
	auditor      *audit.SecurityAuditor
	resource     string
	maxBodyBytes int64
	logger       *zap.Logger
}

// QueryHandlerConfig holds the endpoint settings.
type QueryHandlerConfig struct {
	// Resource whose create/read/update/delete grants allow running batches.
	Resource     string
	MaxBodyBytes int64
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(
	batchService services.BatchService,
	auditor *audit.SecurityAuditor,
	cfg QueryHandlerConfig,
	logger *zap.Logger,
) *QueryHandler {
	resource := cfg.Resource
	if resource == "" {
		resource = auth.DefaultResource
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = batchsql.MaxScriptBytes
	}
	return &QueryHandler{
		batchService: batchService,
		auditor:      auditor,
		resource:     resource,
		maxBodyBytes: maxBody,
		logger:       logger,
	}
}

// RegisterRoutes registers POST path on mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, path string, authMiddleware *auth.Middleware) {
	mux.Handle("POST "+path,
		middleware.BatchResponseLogger(h.logger)(authMiddleware.Authenticate(h.Run)))
}

// Run handles POST {query_path}. The caller is authorized before the body
// is read, so a refused caller never reaches the store.
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	claims, _ := auth.GetClaims(ctx)
	if err := auth.Authorize(claims, h.resource); err != nil {
		if h.auditor != nil {
			h.auditor.LogPermissionDenied(ctx, h.resource, err.Error(), ip)
		}
		h.writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req batchsql.ScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, fmt.Errorf("%w: Request body too large", apperrors.ErrInvalidInput))
		case errors.Is(err, apperrors.ErrInvalidInput):
			h.writeError(w, err)
		default:
			h.writeMessage(w, "Invalid request body")
		}
		return
	}

	result, err := h.batchService.Run(ctx, &services.RunBatchRequest{Script: req, ClientIP: ip})
	if err != nil {
		if !apperrors.IsRequestError(err) {
			h.logger.Error("Batch execution failed",
				zap.String("request_id", middleware.GetRequestID(ctx)),
				zap.String("error", logging.SanitizeError(err)))
		}
		h.writeError(w, err)
		return
	}

	if err := WriteData(w, result.Outcome.LastResult); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError reports err as a Bad Request. Request errors carry their public
// message; anything else is sanitized first.
func (h *QueryHandler) writeError(w http.ResponseWriter, err error) {
	msg := apperrors.PublicMessage(err)
	if !apperrors.IsRequestError(err) {
		msg = logging.SanitizeError(err)
	}
	h.writeMessage(w, msg)
}

func (h *QueryHandler) writeMessage(w http.ResponseWriter, msg string) {
	if err := ErrorResponse(w, http.StatusBadRequest, msg); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
