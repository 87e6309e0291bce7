package audit

//go:generate mockgen -source=logger.go -destination=mocks/store.go -package=mocks Store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"workclock/internal/model"
	"workclock/internal/requestctx"
)

// Store appends audit entries. Entries are never read back by the service.
type Store interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
}

// FailureRecorder is notified when an entry could not be written.
type FailureRecorder interface {
	AuditWriteFailed()
}

// Context describes one failed operation.
type Context struct {
	Endpoint   string
	Method     string
	Request    map[string]any
	Err        error
	UserID     *int64
	StatusCode *int
	Trace      string
}

// Logger writes one audit entry per failure. Writing is best effort: a
// failed write is reported to the fallback logger and dropped.
type Logger struct {
	store    Store
	fallback *zap.Logger
	timeout  time.Duration
	failures FailureRecorder
	now      func() time.Time
}

// NewLogger creates a logger. fallback receives entries that could not be
// stored; timeout bounds the single write attempt.
func NewLogger(store Store, fallback *zap.Logger, timeout time.Duration, failures FailureRecorder) *Logger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Logger{
		store:    store,
		fallback: fallback,
		timeout:  timeout,
		failures: failures,
		now:      time.Now,
	}
}

// Record builds a redacted entry and appends it. It never returns an error
// and never panics into the caller.
func (l *Logger) Record(ctx context.Context, c Context) {
	defer func() {
		if r := recover(); r != nil {
			l.fallback.Error("audit record panicked", zap.Any("panic", r), zap.String("endpoint", c.Endpoint))
		}
	}()

	entry := l.build(ctx, c)

	// The write outlives a cancelled request but not the timeout.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.store.AppendAudit(writeCtx, entry); err != nil {
		if l.failures != nil {
			l.failures.AuditWriteFailed()
		}
		l.fallback.Error("audit write failed",
			zap.Error(err),
			zap.String("endpoint", entry.Endpoint),
			zap.String("method", entry.Method),
			zap.String("request_id", entry.RequestID),
			zap.String("error_message", entry.ErrorMessage),
			zap.String("request_snapshot", entry.RequestSnapshot),
		)
	}
}

func (l *Logger) build(ctx context.Context, c Context) model.AuditEntry {
	snapshot := []byte(`{}`)
	if c.Request != nil {
		if b, err := json.Marshal(Redact(c.Request)); err == nil {
			snapshot = b
		}
	}

	msg := "unknown error"
	if c.Err != nil {
		msg = c.Err.Error()
	}

	entry := model.AuditEntry{
		Timestamp:       l.now().UTC(),
		Endpoint:        c.Endpoint,
		Method:          c.Method,
		RequestSnapshot: string(snapshot),
		ErrorMessage:    msg,
		UserID:          c.UserID,
		StatusCode:      c.StatusCode,
		RequestID:       requestctx.RequestID(ctx),
	}
	if c.Trace != "" {
		trace := c.Trace
		entry.Trace = &trace
	}
	return entry
}
