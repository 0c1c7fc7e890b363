package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"bottle-monitor/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit entry
// after each RPC made by an authenticated principal or device. skipMethods is
// the set of full method names to not audit. Writes are best-effort.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		principalID, ok := GetPrincipalID(ctx)
		dev, isDevice := GetDevice(ctx)
		if !ok && !isDevice {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		meta := "code=" + status.Code(err).String()
		if isDevice {
			meta += " device=" + dev.DeviceID
		}
		logger.LogEvent(ctx, principalID, ar.Action, ar.Resource, meta)
		return resp, err
	}
}
