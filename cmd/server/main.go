package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"

	authv1 "bottle-monitor/backend/api/auth/v1"
	"bottle-monitor/backend/internal/app"
	"bottle-monitor/backend/internal/config"
	"bottle-monitor/backend/internal/health"
	"bottle-monitor/backend/internal/logging"
	"bottle-monitor/backend/internal/server"
	"bottle-monitor/backend/internal/server/interceptors"
	telemetryotel "bottle-monitor/backend/internal/telemetry/otel"
)

const (
	serviceName         = "bottle-monitor-auth"
	healthCheckInterval = 10 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	a, err := app.Build(ctx, cfg, logger, app.Options{
		MeterProvider:  providers.MeterProvider,
		LoggerProvider: providers.LoggerProvider,
	})
	if err != nil {
		logger.Fatal("build service", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	hs := grpchealth.NewServer()
	checker := health.NewChecker(hs, a.Store, logger.Named("health"),
		authv1.AuthService_ServiceName, authv1.SessionService_ServiceName, authv1.DeviceService_ServiceName)

	trusted, err := interceptors.ParseTrustedProxies(cfg.TrustedProxiesList())
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	s := server.NewServer(server.Deps{
		Auth:           a.Auth,
		Audit:          a.Audit,
		Health:         hs,
		TrustedProxies: trusted,
		Logger:         logger.Named("grpc"),
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		checker.Run(gctx, healthCheckInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening",
			zap.String("addr", cfg.GRPCAddr),
			zap.String("store", a.Store.Backend),
		)
		return s.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gRPC server...")
		gracefulStop(s, logger)
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("serve", zap.Error(err))
	}
	logger.Info("gRPC server stopped")
}

func gracefulStop(s *grpc.Server, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out; forcing")
		s.Stop()
	}
}
