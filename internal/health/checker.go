// Package health reports credential store readiness through the standard
// grpc.health.v1 service.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultTimeout = 2 * time.Second

// Pinger checks connectivity to a backing store (e.g. *sql.DB, a Redis client
// wrapper or a DynamoDB DescribeTable call).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker keeps the serving status of services in sync with the store.
type Checker struct {
	server   *grpchealth.Server
	pinger   Pinger
	services []string
	timeout  time.Duration
	log      *zap.Logger
}

// NewChecker returns a Checker that updates server for the overall status ("")
// and for each named service. A nil pinger always reports SERVING.
func NewChecker(server *grpchealth.Server, pinger Pinger, log *zap.Logger, services ...string) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{
		server:   server,
		pinger:   pinger,
		services: append([]string{""}, services...),
		timeout:  defaultTimeout,
		log:      log,
	}
}

// Check pings the store once and publishes the resulting status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.pinger.Ping(pctx)
		cancel()
		if err != nil {
			c.log.Warn("health: store ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, svc := range c.services {
		c.server.SetServingStatus(svc, st)
	}
	return st
}

// Run checks every interval until ctx is done, then marks every service
// NOT_SERVING.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
