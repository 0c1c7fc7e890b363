package authv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	DeviceService_ServiceName = "auth.v1.DeviceService"

	DeviceService_Identify_FullMethodName = "/auth.v1.DeviceService/Identify"
)

// DeviceServiceServer is the server API for DeviceService. Every method
// requires a device credential.
type DeviceServiceServer interface {
	Identify(context.Context, *IdentifyRequest) (*IdentifyResponse, error)
	mustEmbedUnimplementedDeviceServiceServer()
}

// UnimplementedDeviceServiceServer must be embedded by DeviceServiceServer implementations.
type UnimplementedDeviceServiceServer struct{}

func (UnimplementedDeviceServiceServer) Identify(context.Context, *IdentifyRequest) (*IdentifyResponse, error) {
	return nil, unimplemented("Identify")
}

func (UnimplementedDeviceServiceServer) mustEmbedUnimplementedDeviceServiceServer() {}

// RegisterDeviceServiceServer registers srv with s.
func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&DeviceService_ServiceDesc, srv)
}

// DeviceService_ServiceDesc is the grpc.ServiceDesc for DeviceService.
var DeviceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: DeviceService_ServiceName,
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Identify",
			Handler:    unaryHandler(DeviceService_Identify_FullMethodName, DeviceServiceServer.Identify),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth/v1/device.proto",
}

// DeviceServiceClient is the client API for DeviceService.
type DeviceServiceClient interface {
	Identify(ctx context.Context, in *IdentifyRequest, opts ...grpc.CallOption) (*IdentifyResponse, error)
}

type deviceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDeviceServiceClient returns a DeviceService client using the JSON codec.
func NewDeviceServiceClient(cc grpc.ClientConnInterface) DeviceServiceClient {
	return &deviceServiceClient{cc: cc}
}

func (c *deviceServiceClient) Identify(ctx context.Context, in *IdentifyRequest, opts ...grpc.CallOption) (*IdentifyResponse, error) {
	return invoke[IdentifyResponse](ctx, c.cc, DeviceService_Identify_FullMethodName, in, opts)
}
