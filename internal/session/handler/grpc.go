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
	"bottle-monitor/backend/internal/session/domain"
)

// SessionAuth is the subset of the auth service used by Server.
type SessionAuth interface {
	Sessions(ctx context.Context, principalID string) ([]domain.Lineage, error)
	LogoutPrincipal(ctx context.Context, principalID string) error
}

// Server implements SessionService (auth.v1) for the authenticated caller.
type Server struct {
	authv1.UnimplementedSessionServiceServer
	auth SessionAuth
	log  *zap.Logger
}

// NewServer returns a new Session gRPC server. If auth is nil, all RPCs return Unimplemented.
func NewServer(auth SessionAuth, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, log: log}
}

// ListSessions returns the caller's refresh token lineages, newest first.
func (s *Server) ListSessions(ctx context.Context, _ *authv1.ListSessionsRequest) (*authv1.ListSessionsResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
	}
	principalID, ok := interceptors.GetPrincipalID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	lineages, err := s.auth.Sessions(ctx, principalID)
	if err != nil {
		return nil, s.grpcError(err)
	}
	out := make([]authv1.Session, 0, len(lineages))
	for _, l := range lineages {
		sess := authv1.Session{ID: l.ID, CreatedAt: l.CreatedAt.Unix(), Current: l.Current}
		if !l.ExpiresAt.IsZero() {
			sess.ExpiresAt = l.ExpiresAt.Unix()
		}
		out = append(out, sess)
	}
	return &authv1.ListSessionsResponse{Sessions: out}, nil
}

// RevokeAllSessions ends every session of the caller, including the one whose
// access token authorized the call once it expires.
func (s *Server) RevokeAllSessions(ctx context.Context, _ *authv1.RevokeAllSessionsRequest) (*authv1.RevokeAllSessionsResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeAllSessions not implemented")
	}
	principalID, ok := interceptors.GetPrincipalID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	if err := s.auth.LogoutPrincipal(ctx, principalID); err != nil {
		return nil, s.grpcError(err)
	}
	return &authv1.RevokeAllSessionsResponse{}, nil
}

func (s *Server) grpcError(err error) error {
	switch {
	case errors.Is(err, identityservice.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, identityservice.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		s.log.Error("session rpc failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
