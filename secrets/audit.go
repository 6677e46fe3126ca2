package secrets

import (
	"context"
	"log/slog"
	"time"
)

// AuditLogger records secret access. Implementations must be safe for
// concurrent use and must never log secret values.
type AuditLogger interface {
	LogAccess(ctx context.Context, action string, ref SecretRef, success bool, err error)
}

// AuditEntry is one recorded access.
type AuditEntry struct {
	Timestamp time.Time
	Action    string
	Provider  string
	SecretRef SecretRef
	Success   bool
	Error     string
}

// NewAuditEntry returns an entry stamped with the current time.
func NewAuditEntry(action string, ref SecretRef, success bool, err error) *AuditEntry {
	entry := &AuditEntry{
		Timestamp: time.Now(),
		Action:    action,
		SecretRef: ref,
		Success:   success,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

// SlogAuditLogger writes audit entries to a slog.Logger at info level, or
// warn level for failed access.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger returns an AuditLogger backed by logger.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	return &SlogAuditLogger{logger: logger}
}

// LogAccess implements AuditLogger.
func (l *SlogAuditLogger) LogAccess(ctx context.Context, action string, ref SecretRef, success bool, err error) {
	entry := NewAuditEntry(action, ref, success, err)
	attrs := []slog.Attr{
		slog.String("action", entry.Action),
		slog.String("secret", entry.SecretRef.Path),
		slog.Bool("success", entry.Success),
	}
	if entry.SecretRef.Version != "" {
		attrs = append(attrs, slog.String("version", entry.SecretRef.Version))
	}
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", entry.Error))
	}
	l.logger.LogAttrs(ctx, level, "secret access", attrs...)
}
