package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "bottle-monitor/backend/api/auth/v1"
	identityservice "bottle-monitor/backend/internal/identity/service"
	"bottle-monitor/backend/internal/server/interceptors"
	sessiondomain "bottle-monitor/backend/internal/session/domain"
)

// MsgLogInAgain is returned for every credential or refresh rejection so callers
// cannot tell an unknown account from a wrong password or a stale token.
const MsgLogInAgain = "please log in again"

// AuthServer implements AuthService (auth.v1) on top of the identity service.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth *identityservice.AuthService
	log  *zap.Logger
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, all RPCs return Unimplemented.
func NewAuthServer(auth *identityservice.AuthService, log *zap.Logger) *AuthServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServer{auth: auth, log: log}
}

// Register creates a password principal.
func (s *AuthServer) Register(ctx context.Context, req *authv1.RegisterRequest) (*authv1.RegisterResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Register not implemented")
	}
	p, err := s.auth.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.RegisterResponse{PrincipalID: p.ID, Email: p.Email, DisplayName: p.DisplayName}, nil
}

// Login authenticates with email and password.
func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	pair, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return authResponse(pair), nil
}

// Refresh rotates a refresh token.
func (s *AuthServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	pair, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return authResponse(pair), nil
}

// Logout revokes every session of the caller, identified by the refresh token
// in the request or, when it is empty, by the Bearer access token.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	var err error
	if req.RefreshToken != "" {
		err = s.auth.Logout(ctx, req.RefreshToken)
	} else if principalID, ok := interceptors.GetPrincipalID(ctx); ok {
		err = s.auth.LogoutPrincipal(ctx, principalID)
	} else {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	if err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.LogoutResponse{}, nil
}

// FederatedLoginURL returns the provider consent URL.
func (s *AuthServer) FederatedLoginURL(ctx context.Context, req *authv1.FederatedLoginURLRequest) (*authv1.FederatedLoginURLResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method FederatedLoginURL not implemented")
	}
	url, state, err := s.auth.FederatedLoginURL(ctx, req.State)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.FederatedLoginURLResponse{URL: url, State: state}, nil
}

// FederatedLoginCallback completes a federated login with an authorization code.
func (s *AuthServer) FederatedLoginCallback(ctx context.Context, req *authv1.FederatedLoginCallbackRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method FederatedLoginCallback not implemented")
	}
	pair, err := s.auth.FederatedLoginCallback(ctx, req.Code, req.State)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return authResponse(pair), nil
}

// IssueDeviceCredential mints a device credential for an authenticated principal.
func (s *AuthServer) IssueDeviceCredential(ctx context.Context, req *authv1.IssueDeviceCredentialRequest) (*authv1.IssueDeviceCredentialResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method IssueDeviceCredential not implemented")
	}
	principalID, ok := interceptors.GetPrincipalID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	token, err := s.auth.IssueDeviceCredential(ctx, principalID, req.DeviceID, req.ResourceID)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.IssueDeviceCredentialResponse{DeviceCredential: token}, nil
}

// WhoAmI returns the authenticated principal.
func (s *AuthServer) WhoAmI(ctx context.Context, _ *authv1.WhoAmIRequest) (*authv1.WhoAmIResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method WhoAmI not implemented")
	}
	principalID, ok := interceptors.GetPrincipalID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	p, err := s.auth.WhoAmI(ctx, principalID)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.WhoAmIResponse{
		PrincipalID:  p.ID,
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		Federated:    p.FederatedID != "",
		TokenVersion: p.TokenVersion,
	}, nil
}

func authResponse(p *sessiondomain.Pair) *authv1.AuthResponse {
	resp := &authv1.AuthResponse{
		PrincipalID:     p.PrincipalID,
		AccessToken:     p.AccessToken,
		AccessExpiresAt: p.AccessExpiresAt.Unix(),
		RefreshToken:    p.RefreshToken,
		TokenType:       "Bearer",
	}
	if !p.RefreshExpiresAt.IsZero() {
		resp.RefreshExpiresAt = p.RefreshExpiresAt.Unix()
	}
	return resp
}

// grpcError maps identity service errors to gRPC status errors.
func (s *AuthServer) grpcError(err error) error {
	var verr *identityservice.ValidationError
	switch {
	case errors.Is(err, identityservice.ErrInvalidCredentials),
		errors.Is(err, identityservice.ErrInvalidOrStaleToken):
		return status.Error(codes.Unauthenticated, MsgLogInAgain)
	case errors.Is(err, identityservice.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, interceptors.MsgAccessTokenExpired)
	case errors.Is(err, identityservice.ErrTokenMalformed):
		return status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	case errors.Is(err, identityservice.ErrStoreUnavailable):
		s.log.Warn("credential store unavailable", zap.Error(err))
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, identityservice.ErrInvalidDeviceIdentity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, identityservice.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, identityservice.ErrFederatedNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, identityservice.ErrFederatedExchange),
		errors.Is(err, identityservice.ErrFederatedState):
		return status.Error(codes.Unauthenticated, MsgLogInAgain)
	default:
		s.log.Error("auth rpc failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
