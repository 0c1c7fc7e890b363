package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bottle-monitor/backend/internal/audit/domain"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the auth code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, principalID, action, resource, metadata string)
}

// Sink receives audit entries. The Postgres repository and the Kafka writer are sinks.
type Sink interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}

// Logger implements AuditLogger by fanning each entry out to its sinks.
type Logger struct {
	sinks       []Sink
	ipExtractor IPExtractor
	log         *zap.Logger
	timeout     time.Duration
}

// NewLogger returns an AuditLogger that writes to every non-nil sink and uses
// ipExtractor for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(log *zap.Logger, ipExtractor IPExtractor, sinks ...Sink) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{ipExtractor: ipExtractor, log: log, timeout: 2 * time.Second}
	for _, s := range sinks {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, principalID, action, resource, metadata string) {
	if len(l.sinks) == 0 {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		Action:      action,
		Resource:    resource,
		IP:          ip,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	// Detached from the request so a cancelled RPC still records its outcome.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	for _, s := range l.sinks {
		if err := s.Create(wctx, entry); err != nil {
			l.log.Warn("audit: failed to log event",
				zap.String("action", action),
				zap.String("resource", resource),
				zap.Error(err),
			)
		}
	}
}

// Nop is an AuditLogger that discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
