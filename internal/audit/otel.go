package audit

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"bottle-monitor/backend/internal/audit/domain"
)

// RecordEmitter is the subset of otellog.Logger used by OTelSink.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// OTelSink exports audit entries as OpenTelemetry log records. It gives the
// Redis and DynamoDB backends, which keep no audit table, a durable trail in
// the collector.
type OTelSink struct {
	logger RecordEmitter
}

// NewOTelSink returns a sink emitting through provider, or nil if provider is nil.
func NewOTelSink(provider *sdklog.LoggerProvider) *OTelSink {
	if provider == nil {
		return nil
	}
	return NewOTelSinkWithLogger(provider.Logger("bottle-monitor.audit"))
}

// NewOTelSinkWithLogger returns a sink using logger.
func NewOTelSinkWithLogger(logger RecordEmitter) *OTelSink {
	return &OTelSink{logger: logger}
}

// warnActions are emitted at WARN.
var warnActions = map[string]bool{
	domain.ActionLoginFailure:    true,
	domain.ActionRefreshRejected: true,
	domain.ActionRefreshReuse:    true,
}

// Create emits one record per entry. The body is the action; the other fields
// become attributes.
func (s *OTelSink) Create(ctx context.Context, a *domain.AuditLog) error {
	if s == nil || s.logger == nil || a == nil {
		return nil
	}
	var rec otellog.Record
	rec.SetTimestamp(a.CreatedAt)
	rec.SetObservedTimestamp(a.CreatedAt)
	if warnActions[a.Action] {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	rec.SetBody(otellog.StringValue(a.Action))
	rec.AddAttributes(
		otellog.String("audit.id", a.ID),
		otellog.String("audit.action", a.Action),
		otellog.String("audit.resource", a.Resource),
		otellog.String("client.ip", a.IP),
	)
	if a.PrincipalID != "" {
		rec.AddAttributes(otellog.String("principal_id", a.PrincipalID))
	}
	if a.Metadata != "" {
		rec.AddAttributes(otellog.String("audit.metadata", a.Metadata))
	}
	s.logger.Emit(ctx, rec)
	return nil
}
