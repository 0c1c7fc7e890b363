package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "bottle-monitor/backend/api/auth/v1"
	"bottle-monitor/backend/internal/audit"
	devicehandler "bottle-monitor/backend/internal/device/handler"
	identityhandler "bottle-monitor/backend/internal/identity/handler"
	sessionhandler "bottle-monitor/backend/internal/session/handler"
	identityservice "bottle-monitor/backend/internal/identity/service"
	"bottle-monitor/backend/internal/server/interceptors"
)

// Deps holds the service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the auth service. If nil, AuthService RPCs return Unimplemented
	// and no credential interceptors are installed.
	Auth *identityservice.AuthService
	// Audit records one entry per authenticated RPC. If nil, only the auth
	// service's own events are audited.
	Audit audit.AuditLogger
	// Health is the grpc.health.v1 server. If nil, a fresh one reporting
	// SERVING is registered.
	Health *grpchealth.Server
	// TrustedProxies are the peers whose forwarding headers name the caller.
	// If nil, log lines and audit entries use the transport peer.
	TrustedProxies *interceptors.TrustedProxies
	Logger         *zap.Logger
}

// PublicMethods returns the AuthService methods callable without an access token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		authv1.AuthService_Register_FullMethodName:               true,
		authv1.AuthService_Login_FullMethodName:                  true,
		authv1.AuthService_Refresh_FullMethodName:                true,
		authv1.AuthService_Logout_FullMethodName:                 true,
		authv1.AuthService_FederatedLoginURL_FullMethodName:      true,
		authv1.AuthService_FederatedLoginCallback_FullMethodName: true,
	}
}

// quietMethods are not logged or audited.
var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewServer returns a gRPC server with OpenTelemetry instrumentation, the
// interceptor chain and every service registered. Extra options are appended.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(Interceptors(deps)...),
	}
	s := grpc.NewServer(append(serverOpts, opts...)...)
	RegisterServices(s, deps)
	return s
}

// Interceptors returns the unary chain in order: client address, logging,
// access token auth (auth and session services), device credential auth,
// span annotation, audit.
func Interceptors(deps Deps) []grpc.UnaryServerInterceptor {
	chain := []grpc.UnaryServerInterceptor{
		interceptors.ClientIPUnary(deps.TrustedProxies),
		interceptors.LoggingUnary(deps.Logger, quietMethods),
	}
	if deps.Auth != nil {
		chain = append(chain,
			interceptors.AuthUnary(deps.Auth, authv1.AuthService_ServiceName, PublicMethods()),
			interceptors.AuthUnary(deps.Auth, authv1.SessionService_ServiceName, nil),
			interceptors.DeviceAuthUnary(deps.Auth, authv1.DeviceService_ServiceName),
		)
	}
	chain = append(chain, interceptors.TelemetryUnary())
	if deps.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Audit, quietMethods))
	}
	return chain
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - auth.v1.AuthService    → internal/identity/handler
//   - auth.v1.SessionService → internal/session/handler
//   - auth.v1.DeviceService  → internal/device/handler
//   - grpc.health.v1.Health  → google.golang.org/grpc/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authv1.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Logger))
	var sessions sessionhandler.SessionAuth
	if deps.Auth != nil {
		sessions = deps.Auth
	}
	authv1.RegisterSessionServiceServer(s, sessionhandler.NewServer(sessions, deps.Logger))
	authv1.RegisterDeviceServiceServer(s, devicehandler.NewServer())
	hs := deps.Health
	if hs == nil {
		hs = grpchealth.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}
