package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "bottle-monitor/backend/api/auth/v1"
	"bottle-monitor/backend/internal/device"
	identityservice "bottle-monitor/backend/internal/identity/service"
	principalrepo "bottle-monitor/backend/internal/principal/repository"
	refreshrepo "bottle-monitor/backend/internal/refreshtoken/repository"
	"bottle-monitor/backend/internal/security"
	"bottle-monitor/backend/internal/server/interceptors"
	sessionservice "bottle-monitor/backend/internal/session/service"
)

const testPassword = "Correct-Horse-9"

func newTestServer(t *testing.T) *AuthServer {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	principals := principalrepo.NewMemoryRepository()
	svc := identityservice.NewAuthService(identityservice.Deps{
		Principals: principals,
		Sessions: sessionservice.NewManager(principals, refreshrepo.NewMemoryRepository(), tokens,
			sessionservice.Options{RefreshTTL: time.Hour}),
		Devices: device.NewIssuer(tokens),
		Tokens:  tokens,
		Hasher:  security.NewTestHasher(),
	})
	return NewAuthServer(svc, nil)
}

func register(t *testing.T, srv *AuthServer, email string) *authv1.RegisterResponse {
	t.Helper()
	resp, err := srv.Register(context.Background(), &authv1.RegisterRequest{Email: email, Password: testPassword, DisplayName: "Test"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return resp
}

func wantCode(t *testing.T, err error, code codes.Code, msg string) {
	t.Helper()
	st, _ := status.FromError(err)
	if st.Code() != code {
		t.Fatalf("code = %v, want %v (err %v)", st.Code(), code, err)
	}
	if msg != "" && st.Message() != msg {
		t.Errorf("message = %q, want %q", st.Message(), msg)
	}
}

func TestNilService_Unimplemented(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	_, err := srv.Login(context.Background(), &authv1.LoginRequest{})
	wantCode(t, err, codes.Unimplemented, "")
	_, err = srv.WhoAmI(context.Background(), &authv1.WhoAmIRequest{})
	wantCode(t, err, codes.Unimplemented, "")
}

func TestRegisterLoginRefresh(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	reg := register(t, srv, "user@example.com")
	if reg.PrincipalID == "" || reg.Email != "user@example.com" {
		t.Fatalf("Register resp = %+v", reg)
	}

	_, err := srv.Register(ctx, &authv1.RegisterRequest{Email: "USER@example.com", Password: testPassword})
	wantCode(t, err, codes.AlreadyExists, "")
	_, err = srv.Register(ctx, &authv1.RegisterRequest{Email: "bad", Password: testPassword})
	wantCode(t, err, codes.InvalidArgument, "")

	login, err := srv.Login(ctx, &authv1.LoginRequest{Email: "user@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.TokenType != "Bearer" || login.AccessExpiresAt == 0 || login.RefreshExpiresAt == 0 {
		t.Errorf("Login resp = %+v", login)
	}

	refreshed, err := srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("Refresh must rotate the refresh token")
	}
	_, err = srv.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: login.RefreshToken})
	wantCode(t, err, codes.Unauthenticated, MsgLogInAgain)
}

func TestLogin_UniformRejection(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "user@example.com")
	ctx := context.Background()
	for _, req := range []*authv1.LoginRequest{
		{Email: "user@example.com", Password: "Wrong-Password-1"},
		{Email: "nobody@example.com", Password: testPassword},
		{},
	} {
		_, err := srv.Login(ctx, req)
		wantCode(t, err, codes.Unauthenticated, MsgLogInAgain)
	}
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "user@example.com")
	ctx := context.Background()
	login, err := srv.Login(ctx, &authv1.LoginRequest{Email: "user@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := srv.Logout(ctx, &authv1.LogoutRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = srv.Logout(ctx, &authv1.LogoutRequest{RefreshToken: "unknown"})
	wantCode(t, err, codes.NotFound, "")

	_, err = srv.Logout(ctx, &authv1.LogoutRequest{})
	wantCode(t, err, codes.Unauthenticated, interceptors.MsgInvalidAuthorization)

	authed := interceptors.WithPrincipal(ctx, reg.PrincipalID)
	if _, err := srv.Logout(authed, &authv1.LogoutRequest{}); err != nil {
		t.Errorf("Logout by access token: %v", err)
	}
}

func TestWhoAmIAndDeviceCredential(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "user@example.com")
	ctx := interceptors.WithPrincipal(context.Background(), reg.PrincipalID)

	who, err := srv.WhoAmI(ctx, &authv1.WhoAmIRequest{})
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if who.PrincipalID != reg.PrincipalID || who.Federated {
		t.Errorf("WhoAmI = %+v", who)
	}
	_, err = srv.WhoAmI(context.Background(), &authv1.WhoAmIRequest{})
	wantCode(t, err, codes.Unauthenticated, "")
	_, err = srv.WhoAmI(interceptors.WithPrincipal(context.Background(), "ghost"), &authv1.WhoAmIRequest{})
	wantCode(t, err, codes.NotFound, "")

	cred, err := srv.IssueDeviceCredential(ctx, &authv1.IssueDeviceCredentialRequest{DeviceID: "device-1", ResourceID: "bottle-1"})
	if err != nil {
		t.Fatalf("IssueDeviceCredential: %v", err)
	}
	if cred.DeviceCredential == "" {
		t.Error("empty device credential")
	}
	_, err = srv.IssueDeviceCredential(ctx, &authv1.IssueDeviceCredentialRequest{DeviceID: "device-1"})
	wantCode(t, err, codes.InvalidArgument, "")
	_, err = srv.IssueDeviceCredential(context.Background(), &authv1.IssueDeviceCredentialRequest{DeviceID: "d", ResourceID: "r"})
	wantCode(t, err, codes.Unauthenticated, "")
}

func TestFederatedNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.FederatedLoginURL(context.Background(), &authv1.FederatedLoginURLRequest{})
	wantCode(t, err, codes.FailedPrecondition, "")
	_, err = srv.FederatedLoginCallback(context.Background(), &authv1.FederatedLoginCallbackRequest{Code: "c"})
	wantCode(t, err, codes.FailedPrecondition, "")
}

func TestGrpcError(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	tests := []struct {
		name string
		err  error
		code codes.Code
		msg  string
	}{
		{"invalid credentials", identityservice.ErrInvalidCredentials, codes.Unauthenticated, MsgLogInAgain},
		{"stale refresh", fmt.Errorf("%w: %w", identityservice.ErrInvalidOrStaleToken, sessionservice.ErrRefreshStale), codes.Unauthenticated, MsgLogInAgain},
		{"expired access", identityservice.ErrTokenExpired, codes.Unauthenticated, interceptors.MsgAccessTokenExpired},
		{"malformed access", identityservice.ErrTokenMalformed, codes.Unauthenticated, interceptors.MsgInvalidAuthorization},
		{"store", fmt.Errorf("%w: %w", identityservice.ErrStoreUnavailable, context.DeadlineExceeded), codes.Unavailable, ""},
		{"validation", &identityservice.ValidationError{Field: "email", Reason: "is required"}, codes.InvalidArgument, "email: is required"},
		{"duplicate", identityservice.ErrEmailAlreadyRegistered, codes.AlreadyExists, ""},
		{"not found", identityservice.ErrNotFound, codes.NotFound, ""},
		{"other", errors.New("boom"), codes.Internal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, srv.grpcError(tt.err), tt.code, tt.msg)
		})
	}
}
