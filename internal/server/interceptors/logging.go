package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs one line per RPC
// with method, status code, duration and client IP. Request and response bodies
// are never logged. It is installed first so rejected credentials are logged
// too. skipMethods is the set of full method names to not log.
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", ClientIP(ctx)),
		}
		if err != nil {
			fields = append(fields, zap.String("error", status.Convert(err).Message()))
		}
		logger.Log(levelFor(code), "grpc request", fields...)
		return resp, err
	}
}

func levelFor(code codes.Code) zapcore.Level {
	switch code {
	case codes.OK, codes.NotFound, codes.AlreadyExists, codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return zapcore.InfoLevel
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
