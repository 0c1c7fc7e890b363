// Package telemetry records credential lifecycle metrics.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "bottle-monitor/backend/auth"

// Outcome values recorded on the auth counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeReuse    = "reuse"
	OutcomeError    = "error"
)

// AuthMetrics holds the counters for logins, refresh rotations, revocations and
// device credential issuance.
type AuthMetrics struct {
	logins            metric.Int64Counter
	refreshes         metric.Int64Counter
	revocations       metric.Int64Counter
	deviceCredentials metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on a meter from provider. A nil
// provider yields counters that record nothing.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	var (
		m   AuthMetrics
		err error
	)
	if m.logins, err = meter.Int64Counter("auth.login",
		metric.WithDescription("Login attempts by method and outcome.")); err != nil {
		return nil, err
	}
	if m.refreshes, err = meter.Int64Counter("auth.refresh",
		metric.WithDescription("Refresh token rotations by outcome.")); err != nil {
		return nil, err
	}
	if m.revocations, err = meter.Int64Counter("auth.revoke",
		metric.WithDescription("Principal-wide session revocations.")); err != nil {
		return nil, err
	}
	if m.deviceCredentials, err = meter.Int64Counter("auth.device_credentials",
		metric.WithDescription("Device credentials issued.")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordLogin counts one login attempt. method is "password" or "federated".
func (m *AuthMetrics) RecordLogin(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

// RecordRefresh counts one refresh attempt.
func (m *AuthMetrics) RecordRefresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRevoke counts one principal-wide revocation.
func (m *AuthMetrics) RecordRevoke(ctx context.Context) {
	if m == nil {
		return
	}
	m.revocations.Add(ctx, 1)
}

// RecordDeviceCredential counts one issued device credential.
func (m *AuthMetrics) RecordDeviceCredential(ctx context.Context) {
	if m == nil {
		return
	}
	m.deviceCredentials.Add(ctx, 1)
}
