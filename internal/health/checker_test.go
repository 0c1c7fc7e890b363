package health

import (
	"context"
	"errors"
	"testing"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func status(t *testing.T, srv *grpchealth.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestChecker_NilPinger(t *testing.T) {
	srv := grpchealth.NewServer()
	c := NewChecker(srv, nil, nil, "auth.v1.AuthService")
	if got := c.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check = %v, want SERVING", got)
	}
	if got := status(t, srv, "auth.v1.AuthService"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("service status = %v, want SERVING", got)
	}
}

func TestChecker_PingFailure(t *testing.T) {
	srv := grpchealth.NewServer()
	fail := true
	c := NewChecker(srv, PingerFunc(func(context.Context) error {
		if fail {
			return errors.New("connection refused")
		}
		return nil
	}), nil, "auth.v1.AuthService")

	if got := c.Check(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Check = %v, want NOT_SERVING", got)
	}
	if got := status(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall status = %v, want NOT_SERVING", got)
	}
	fail = false
	if got := c.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check after recovery = %v, want SERVING", got)
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	srv := grpchealth.NewServer()
	c := NewChecker(srv, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := status(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v, want NOT_SERVING", got)
	}
}
