package authv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	AuthService_ServiceName = "auth.v1.AuthService"

	AuthService_Register_FullMethodName               = "/auth.v1.AuthService/Register"
	AuthService_Login_FullMethodName                  = "/auth.v1.AuthService/Login"
	AuthService_Refresh_FullMethodName                = "/auth.v1.AuthService/Refresh"
	AuthService_Logout_FullMethodName                 = "/auth.v1.AuthService/Logout"
	AuthService_FederatedLoginURL_FullMethodName      = "/auth.v1.AuthService/FederatedLoginURL"
	AuthService_FederatedLoginCallback_FullMethodName = "/auth.v1.AuthService/FederatedLoginCallback"
	AuthService_IssueDeviceCredential_FullMethodName  = "/auth.v1.AuthService/IssueDeviceCredential"
	AuthService_WhoAmI_FullMethodName                 = "/auth.v1.AuthService/WhoAmI"
)

// AuthServiceServer is the server API for AuthService.
type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Refresh(context.Context, *RefreshRequest) (*AuthResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	FederatedLoginURL(context.Context, *FederatedLoginURLRequest) (*FederatedLoginURLResponse, error)
	FederatedLoginCallback(context.Context, *FederatedLoginCallbackRequest) (*AuthResponse, error)
	IssueDeviceCredential(context.Context, *IssueDeviceCredentialRequest) (*IssueDeviceCredentialResponse, error)
	WhoAmI(context.Context, *WhoAmIRequest) (*WhoAmIResponse, error)
	mustEmbedUnimplementedAuthServiceServer()
}

// UnimplementedAuthServiceServer must be embedded by AuthServiceServer implementations.
type UnimplementedAuthServiceServer struct{}

func (UnimplementedAuthServiceServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, unimplemented("Register")
}

func (UnimplementedAuthServiceServer) Login(context.Context, *LoginRequest) (*AuthResponse, error) {
	return nil, unimplemented("Login")
}

func (UnimplementedAuthServiceServer) Refresh(context.Context, *RefreshRequest) (*AuthResponse, error) {
	return nil, unimplemented("Refresh")
}

func (UnimplementedAuthServiceServer) Logout(context.Context, *LogoutRequest) (*LogoutResponse, error) {
	return nil, unimplemented("Logout")
}

func (UnimplementedAuthServiceServer) FederatedLoginURL(context.Context, *FederatedLoginURLRequest) (*FederatedLoginURLResponse, error) {
	return nil, unimplemented("FederatedLoginURL")
}

func (UnimplementedAuthServiceServer) FederatedLoginCallback(context.Context, *FederatedLoginCallbackRequest) (*AuthResponse, error) {
	return nil, unimplemented("FederatedLoginCallback")
}

func (UnimplementedAuthServiceServer) IssueDeviceCredential(context.Context, *IssueDeviceCredentialRequest) (*IssueDeviceCredentialResponse, error) {
	return nil, unimplemented("IssueDeviceCredential")
}

func (UnimplementedAuthServiceServer) WhoAmI(context.Context, *WhoAmIRequest) (*WhoAmIResponse, error) {
	return nil, unimplemented("WhoAmI")
}

func (UnimplementedAuthServiceServer) mustEmbedUnimplementedAuthServiceServer() {}

// RegisterAuthServiceServer registers srv with s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

// AuthService_ServiceDesc is the grpc.ServiceDesc for AuthService.
var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthService_ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    unaryHandler(AuthService_Register_FullMethodName, AuthServiceServer.Register),
		},
		{
			MethodName: "Login",
			Handler:    unaryHandler(AuthService_Login_FullMethodName, AuthServiceServer.Login),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(AuthService_Refresh_FullMethodName, AuthServiceServer.Refresh),
		},
		{
			MethodName: "Logout",
			Handler:    unaryHandler(AuthService_Logout_FullMethodName, AuthServiceServer.Logout),
		},
		{
			MethodName: "FederatedLoginURL",
			Handler:    unaryHandler(AuthService_FederatedLoginURL_FullMethodName, AuthServiceServer.FederatedLoginURL),
		},
		{
			MethodName: "FederatedLoginCallback",
			Handler:    unaryHandler(AuthService_FederatedLoginCallback_FullMethodName, AuthServiceServer.FederatedLoginCallback),
		},
		{
			MethodName: "IssueDeviceCredential",
			Handler:    unaryHandler(AuthService_IssueDeviceCredential_FullMethodName, AuthServiceServer.IssueDeviceCredential),
		},
		{
			MethodName: "WhoAmI",
			Handler:    unaryHandler(AuthService_WhoAmI_FullMethodName, AuthServiceServer.WhoAmI),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth/v1/auth.proto",
}

// AuthServiceClient is the client API for AuthService.
type AuthServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error)
	FederatedLoginURL(ctx context.Context, in *FederatedLoginURLRequest, opts ...grpc.CallOption) (*FederatedLoginURLResponse, error)
	FederatedLoginCallback(ctx context.Context, in *FederatedLoginCallbackRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	IssueDeviceCredential(ctx context.Context, in *IssueDeviceCredentialRequest, opts ...grpc.CallOption) (*IssueDeviceCredentialResponse, error)
	WhoAmI(ctx context.Context, in *WhoAmIRequest, opts ...grpc.CallOption) (*WhoAmIResponse, error)
}

type authServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthServiceClient returns an AuthService client using the JSON codec.
func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc: cc}
}

func (c *authServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, AuthService_Register_FullMethodName, in, opts)
}

func (c *authServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, AuthService_Login_FullMethodName, in, opts)
}

func (c *authServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, AuthService_Refresh_FullMethodName, in, opts)
}

func (c *authServiceClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, AuthService_Logout_FullMethodName, in, opts)
}

func (c *authServiceClient) FederatedLoginURL(ctx context.Context, in *FederatedLoginURLRequest, opts ...grpc.CallOption) (*FederatedLoginURLResponse, error) {
	return invoke[FederatedLoginURLResponse](ctx, c.cc, AuthService_FederatedLoginURL_FullMethodName, in, opts)
}

func (c *authServiceClient) FederatedLoginCallback(ctx context.Context, in *FederatedLoginCallbackRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, AuthService_FederatedLoginCallback_FullMethodName, in, opts)
}

func (c *authServiceClient) IssueDeviceCredential(ctx context.Context, in *IssueDeviceCredentialRequest, opts ...grpc.CallOption) (*IssueDeviceCredentialResponse, error) {
	return invoke[IssueDeviceCredentialResponse](ctx, c.cc, AuthService_IssueDeviceCredential_FullMethodName, in, opts)
}

func (c *authServiceClient) WhoAmI(ctx context.Context, in *WhoAmIRequest, opts ...grpc.CallOption) (*WhoAmIResponse, error) {
	return invoke[WhoAmIResponse](ctx, c.cc, AuthService_WhoAmI_FullMethodName, in, opts)
}
