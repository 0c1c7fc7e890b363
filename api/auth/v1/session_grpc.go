package authv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionService_ServiceName = "auth.v1.SessionService"

	SessionService_ListSessions_FullMethodName      = "/auth.v1.SessionService/ListSessions"
	SessionService_RevokeAllSessions_FullMethodName = "/auth.v1.SessionService/RevokeAllSessions"
)

// SessionServiceServer is the server API for SessionService. Every method
// requires an access token and acts on the caller's own sessions.
type SessionServiceServer interface {
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	RevokeAllSessions(context.Context, *RevokeAllSessionsRequest) (*RevokeAllSessionsResponse, error)
	mustEmbedUnimplementedSessionServiceServer()
}

// UnimplementedSessionServiceServer must be embedded by SessionServiceServer implementations.
type UnimplementedSessionServiceServer struct{}

func (UnimplementedSessionServiceServer) ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error) {
	return nil, unimplemented("ListSessions")
}
func (UnimplementedSessionServiceServer) RevokeAllSessions(context.Context, *RevokeAllSessionsRequest) (*RevokeAllSessionsResponse, error) {
	return nil, unimplemented("RevokeAllSessions")
}
func (UnimplementedSessionServiceServer) mustEmbedUnimplementedSessionServiceServer() {}

// RegisterSessionServiceServer registers srv with s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

// SessionService_ServiceDesc is the grpc.ServiceDesc for SessionService.
var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionService_ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListSessions",
			Handler:    unaryHandler(SessionService_ListSessions_FullMethodName, SessionServiceServer.ListSessions),
		},
		{
			MethodName: "RevokeAllSessions",
			Handler:    unaryHandler(SessionService_RevokeAllSessions_FullMethodName, SessionServiceServer.RevokeAllSessions),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth/v1/session.proto",
}

// SessionServiceClient is the client API for SessionService.
type SessionServiceClient interface {
	ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error)
	RevokeAllSessions(ctx context.Context, in *RevokeAllSessionsRequest, opts ...grpc.CallOption) (*RevokeAllSessionsResponse, error)
}

type sessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient returns a SessionService client using the JSON codec.
func NewSessionServiceClient(cc grpc.ClientConnInterface) SessionServiceClient {
	return &sessionServiceClient{cc: cc}
}

func (c *sessionServiceClient) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c.cc, SessionService_ListSessions_FullMethodName, in, opts)
}

func (c *sessionServiceClient) RevokeAllSessions(ctx context.Context, in *RevokeAllSessionsRequest, opts ...grpc.CallOption) (*RevokeAllSessionsResponse, error) {
	return invoke[RevokeAllSessionsResponse](ctx, c.cc, SessionService_RevokeAllSessions_FullMethodName, in, opts)
}
