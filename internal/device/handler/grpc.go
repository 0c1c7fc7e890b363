package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "bottle-monitor/backend/api/auth/v1"
	"bottle-monitor/backend/internal/server/interceptors"
)

// Server implements DeviceService (auth.v1) for field devices. The device
// credential is verified by the DeviceAuthUnary interceptor.
type Server struct {
	authv1.UnimplementedDeviceServiceServer
}

// NewServer returns a new Device gRPC server.
func NewServer() *Server {
	return &Server{}
}

// Identify returns the device and resource ids bound by the caller's credential.
func (s *Server) Identify(ctx context.Context, _ *authv1.IdentifyRequest) (*authv1.IdentifyResponse, error) {
	id, ok := interceptors.GetDevice(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, interceptors.MsgInvalidAuthorization)
	}
	return &authv1.IdentifyResponse{DeviceID: id.DeviceID, ResourceID: id.ResourceID}, nil
}
