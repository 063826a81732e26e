package logger

import (
	"context"
	"log/slog"
	"time"
)

// Event types recorded for the two-factor lifecycle
const (
	EventEnrollmentStarted   = "twofactor_enrollment_started"
	EventEnrollmentConfirmed = "twofactor_enrollment_confirmed"
	EventTwoFactorDisabled   = "twofactor_disabled"
	EventCodeVerification    = "twofactor_code_verification"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger records two-factor lifecycle events as structured audit
// lines. Secrets and codes are never part of an event.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogTwoFactorEvent logs a lifecycle or verification event
func (al *AuditLogger) LogTwoFactorEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "twofactor"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
