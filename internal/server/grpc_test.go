package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	authv1 "bottle-monitor/backend/api/auth/v1"
	"bottle-monitor/backend/internal/audit"
	auditrepo "bottle-monitor/backend/internal/audit/repository"
	"bottle-monitor/backend/internal/device"
	identityservice "bottle-monitor/backend/internal/identity/service"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	refreshrepo "bottle-monitor/backend/internal/refreshtoken/repository"
	"bottle-monitor/backend/internal/security"
	sessionservice "bottle-monitor/backend/internal/session/service"
)

const testPassword = "Correct-Horse-9"

type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	want := []string{authv1.AuthService_ServiceName, authv1.SessionService_ServiceName, authv1.DeviceService_ServiceName, "grpc.health.v1.Health"}
	if len(reg.services) != len(want) {
		t.Fatalf("services = %v, want %v", reg.services, want)
	}
	for i := range want {
		if reg.services[i] != want[i] {
			t.Errorf("services[%d] = %q, want %q", i, reg.services[i], want[i])
		}
	}
}

func TestInterceptors_Order(t *testing.T) {
	if got := len(Interceptors(Deps{})); got != 3 {
		t.Errorf("chain without auth = %d, want 3 (client ip, logging, telemetry)", got)
	}
	if got := len(Interceptors(Deps{Auth: &identityservice.AuthService{}, Audit: audit.Nop{}})); got != 7 {
		t.Errorf("full chain = %d, want 7", got)
	}
}

type testEnv struct {
	auth     authv1.AuthServiceClient
	sessions authv1.SessionServiceClient
	device   authv1.DeviceServiceClient
	health healthpb.HealthClient
	audits *auditrepo.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	principals := principalrepo.NewMemoryRepository()
	audits := auditrepo.NewMemoryRepository()
	auditLogger := audit.NewLogger(nil, nil, audits)
	svc := identityservice.NewAuthService(identityservice.Deps{
		Principals: principals,
		Sessions: sessionservice.NewManager(principals, refreshrepo.NewMemoryRepository(), tokens,
			sessionservice.Options{RefreshTTL: time.Hour}),
		Devices: device.NewIssuer(tokens),
		Tokens:  tokens,
		Hasher:  security.NewTestHasher(),
		Audit:   auditLogger,
	})

	lis := bufconn.Listen(1 << 20)
	s := NewServer(Deps{Auth: svc, Audit: auditLogger})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testEnv{
		auth:     authv1.NewAuthServiceClient(conn),
		sessions: authv1.NewSessionServiceClient(conn),
		device:   authv1.NewDeviceServiceClient(conn),
		health:   healthpb.NewHealthClient(conn),
		audits:   audits,
	}
}

func bearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func wantStatus(t *testing.T, err error, code codes.Code, msg string) {
	t.Helper()
	st, _ := status.FromError(err)
	if st.Code() != code {
		t.Fatalf("code = %v, want %v (err %v)", st.Code(), code, err)
	}
	if msg != "" && st.Message() != msg {
		t.Errorf("message = %q, want %q", st.Message(), msg)
	}
}

func TestEndToEnd_UserLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg, err := env.auth.Register(ctx, &authv1.RegisterRequest{Email: "user@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := env.auth.Login(ctx, &authv1.LoginRequest{Email: "user@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	who, err := env.auth.WhoAmI(bearer(ctx, login.AccessToken), &authv1.WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if who.PrincipalID != reg.PrincipalID {
		t.Errorf("WhoAmI principal = %q, want %q", who.PrincipalID, reg.PrincipalID)
	}
	_, err = env.auth.WhoAmI(ctx, &authv1.WhoAmIRequest{})
	wantStatus(t, err, codes.Unauthenticated, "missing or invalid authorization")

	next, err := env.auth.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	_, err = env.auth.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.RefreshToken})
	wantStatus(t, err, codes.Unauthenticated, "please log in again")
	_, err = env.auth.Login(ctx, &authv1.LoginRequest{Email: "user@example.com", Password: "Wrong-Password-1"})
	wantStatus(t, err, codes.Unauthenticated, "please log in again")

	if _, err := env.auth.Logout(bearer(ctx, next.AccessToken), &authv1.LogoutRequest{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = env.auth.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: next.RefreshToken})
	wantStatus(t, err, codes.Unauthenticated, "please log in again")

	entries, err := env.audits.ListByPrincipal(ctx, reg.PrincipalID, 100)
	if err != nil {
		t.Fatalf("ListByPrincipal: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected audit entries for the principal")
	}
}

func TestEndToEnd_DeviceCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.auth.Register(ctx, &authv1.RegisterRequest{Email: "ops@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := env.auth.Login(ctx, &authv1.LoginRequest{Email: "ops@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err = env.auth.IssueDeviceCredential(ctx, &authv1.IssueDeviceCredentialRequest{DeviceID: "d", ResourceID: "r"})
	wantStatus(t, err, codes.Unauthenticated, "")

	cred, err := env.auth.IssueDeviceCredential(bearer(ctx, login.AccessToken),
		&authv1.IssueDeviceCredentialRequest{DeviceID: "device-1", ResourceID: "bottle-1"})
	if err != nil {
		t.Fatalf("IssueDeviceCredential: %v", err)
	}

	id, err := env.device.Identify(bearer(ctx, cred.DeviceCredential), &authv1.IdentifyRequest{})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id.DeviceID != "device-1" || id.ResourceID != "bottle-1" {
		t.Errorf("Identify = %+v", id)
	}

	_, err = env.device.Identify(bearer(ctx, login.AccessToken), &authv1.IdentifyRequest{})
	wantStatus(t, err, codes.Unauthenticated, "")
	_, err = env.auth.WhoAmI(bearer(ctx, cred.DeviceCredential), &authv1.WhoAmIRequest{})
	wantStatus(t, err, codes.Unauthenticated, "missing or invalid authorization")
}

func TestEndToEnd_Health(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestEndToEnd_Sessions(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.auth.Register(ctx, &authv1.RegisterRequest{Email: "sam@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first, err := env.auth.Login(ctx, &authv1.LoginRequest{Email: "sam@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.auth.Login(ctx, &authv1.LoginRequest{Email: "sam@example.com", Password: testPassword}); err != nil {
		t.Fatalf("second Login: %v", err)
	}

	_, err = env.sessions.ListSessions(ctx, &authv1.ListSessionsRequest{})
	wantStatus(t, err, codes.Unauthenticated, "missing or invalid authorization")

	list, err := env.sessions.ListSessions(bearer(ctx, first.AccessToken), &authv1.ListSessionsRequest{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list.Sessions))
	}
	for _, s := range list.Sessions {
		if !s.Current {
			t.Errorf("session %s should be current before revoke", s.ID)
		}
	}

	if _, err := env.sessions.RevokeAllSessions(bearer(ctx, first.AccessToken), &authv1.RevokeAllSessionsRequest{}); err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	list, err = env.sessions.ListSessions(bearer(ctx, first.AccessToken), &authv1.ListSessionsRequest{})
	if err != nil {
		t.Fatalf("ListSessions after revoke: %v", err)
	}
	for _, s := range list.Sessions {
		if s.Current {
			t.Errorf("session %s still current after revoke", s.ID)
		}
	}
	_, err = env.auth.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: first.RefreshToken})
	wantStatus(t, err, codes.Unauthenticated, "please log in again")
}
