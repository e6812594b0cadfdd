// Package audit provides security audit logging for SIEM consumption.
// Events are written as structured JSON through a dedicated zap logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-batch/pkg/auth"
	"github.com/ekaya-inc/ekaya-batch/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a parameter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventPermissionDenied is logged when a caller may not run batches.
	EventPermissionDenied SecurityEventType = "permission_denied"
	// EventBatchExecution summarizes a completed batch.
	EventBatchExecution SecurityEventType = "batch_execution"
)

// maxAuditValueLength caps parameter values copied into events.
const maxAuditValueLength = 256

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	BatchID   uuid.UUID         `json:"batch_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged parameter.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// BatchExecutionDetails summarizes one batch.
type BatchExecutionDetails struct {
	Store            string `json:"store"`
	Statements       int    `json:"statements"`
	Succeeded        int    `json:"succeeded"`
	Suppressed       int    `json:"suppressed"`
	Failed           int    `json:"failed"`
	NonTransactional int    `json:"non_transactional"`
	DurationMS       int64  `json:"duration_ms"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit"
// namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a flagged parameter value at ERROR level with
// "critical" severity. The batch itself is not blocked.
func (a *SecurityAuditor) LogInjectionAttempt(
	ctx context.Context,
	batchID uuid.UUID,
	details SQLInjectionDetails,
	clientIP string,
) {
	userID := auth.CallerID(ctx)
	details.ParamValue = logging.TruncateString(details.ParamValue, maxAuditValueLength)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLInjectionAttempt,
		BatchID:   batchID,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "critical",
	}

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("batch_id", batchID.String()),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "critical"),
	)
}

// LogPermissionDenied records a caller that was refused.
func (a *SecurityAuditor) LogPermissionDenied(
	ctx context.Context,
	resource, reason string,
	clientIP string,
) {
	userID := auth.CallerID(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventPermissionDenied,
		UserID:    userID,
		ClientIP:  clientIP,
		Details: map[string]string{
			"resource": resource,
			"reason":   reason,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Permission denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("resource", resource),
		zap.String("reason", reason),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "warning"),
	)
}

// LogBatchExecution records a committed batch at INFO level. This is one
// event per request and can be disabled through configuration.
func (a *SecurityAuditor) LogBatchExecution(
	ctx context.Context,
	batchID uuid.UUID,
	details BatchExecutionDetails,
	clientIP string,
) {
	userID := auth.CallerID(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventBatchExecution,
		BatchID:   batchID,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Batch executed",
		zap.String("event_json", string(eventJSON)),
		zap.String("batch_id", batchID.String()),
		zap.Int("statements", details.Statements),
		zap.Int("failed", details.Failed),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "info"),
	)
}
