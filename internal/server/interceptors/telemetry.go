package interceptors

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// TelemetryUnary returns a unary server interceptor that annotates the active
// span (started by the otelgrpc stats handler) with the authenticated caller
// and the client IP. It must run after AuthUnary and DeviceAuthUnary.
func TelemetryUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return resp, err
		}
		attrs := []attribute.KeyValue{
			attribute.String("client.ip", ClientIP(ctx)),
			attribute.String("rpc.grpc.status", status.Code(err).String()),
		}
		if id, ok := GetPrincipalID(ctx); ok {
			attrs = append(attrs, attribute.String("auth.principal_id", id))
		}
		if dev, ok := GetDevice(ctx); ok {
			attrs = append(attrs,
				attribute.String("auth.device_id", dev.DeviceID),
				attribute.String("auth.resource_id", dev.ResourceID),
			)
		}
		span.SetAttributes(attrs...)
		return resp, err
	}
}
