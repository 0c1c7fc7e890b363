// Package app assembles the credential service from configuration. Both the
// gRPC server and the operator CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"

	"bottle-monitor/backend/internal/audit"
	"bottle-monitor/backend/internal/config"
	"bottle-monitor/backend/internal/device"
	"bottle-monitor/backend/internal/federated"
	identityservice "bottle-monitor/backend/internal/identity/service"
	"bottle-monitor/backend/internal/security"
	"bottle-monitor/backend/internal/server/interceptors"
	sessionservice "bottle-monitor/backend/internal/session/service"
	"bottle-monitor/backend/internal/store"
	"bottle-monitor/backend/internal/telemetry"
)

// App is a wired credential service.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Tokens   *security.TokenProvider
	Hasher   *security.Hasher
	Sessions *sessionservice.Manager
	Auth     *identityservice.AuthService
	Audit    audit.AuditLogger

	closers []func() error
}

// Options tunes Build.
type Options struct {
	// MeterProvider receives auth counters; nil records nothing.
	MeterProvider metric.MeterProvider
	// LoggerProvider, when set, also exports audit entries as OTLP log records.
	LoggerProvider *sdklog.LoggerProvider
	// Store overrides the configured backend (tests).
	Store *store.Store
}

// Build opens the store and constructs every service. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tokens, err := NewTokenProvider(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := security.NewHasher(cfg.Argon2Time, cfg.Argon2MemoryKiB, cfg.Argon2Threads)
	if err != nil {
		return nil, fmt.Errorf("argon2: %w", err)
	}
	metrics, err := telemetry.NewAuthMetrics(opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	st := opts.Store
	if st == nil {
		if st, err = store.Open(ctx, cfg, log); err != nil {
			return nil, err
		}
	}
	a := &App{Config: cfg, Store: st, Tokens: tokens, Hasher: hasher}
	a.closers = append(a.closers, st.Close)

	var sinks []audit.Sink
	if st.Audit != nil {
		sinks = append(sinks, st.Audit)
	}
	brokers := cfg.KafkaBrokersList()
	if k := audit.NewKafkaSink(brokers, cfg.AuditKafkaTopic); k != nil {
		sinks = append(sinks, k)
		a.closers = append(a.closers, k.Close)
		log.Info("audit streaming enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.AuditKafkaTopic))
	}
	if o := audit.NewOTelSink(opts.LoggerProvider); o != nil {
		sinks = append(sinks, o)
		log.Info("audit log export enabled")
	}
	a.Audit = audit.NewLogger(log.Named("audit"), interceptors.ClientIP, sinks...)

	var provider federated.Provider
	var states federated.StateStore
	if cfg.GoogleEnabled() {
		g, err := federated.NewGoogleProvider(federated.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("google: %w", err)
		}
		provider = g
		states = federated.NewMemoryStateStore(cfg.FederatedMaxStates)
	}

	a.Sessions = sessionservice.NewManager(st.Principals, st.RefreshTokens, tokens, sessionservice.Options{
		RefreshTTL:    cfg.JWTRefreshTTL,
		StoreTimeout:  cfg.StoreTimeout,
		RevokeOnReuse: cfg.RevokeOnRefreshReuse,
		Logger:        log.Named("session"),
	})
	a.Auth = identityservice.NewAuthService(identityservice.Deps{
		Principals:   st.Principals,
		Sessions:     a.Sessions,
		Devices:      device.NewIssuer(tokens),
		Tokens:       tokens,
		Hasher:       hasher,
		Federated:    provider,
		States:       states,
		Audit:        a.Audit,
		Metrics:      metrics,
		Logger:       log.Named("auth"),
		StoreTimeout: cfg.StoreTimeout,
	})
	return a, nil
}

// NewTokenProvider builds the session and device signing domains from cfg.
func NewTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	session, err := security.BuildDomain(cfg.SessionDomainSpec())
	if err != nil {
		return nil, fmt.Errorf("session signing domain: %w", err)
	}
	dev, err := security.BuildDomain(cfg.DeviceDomainSpec())
	if err != nil {
		return nil, fmt.Errorf("device signing domain: %w", err)
	}
	return security.NewTokenProvider(session, dev, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
}

// Close releases the audit stream and the store, in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
