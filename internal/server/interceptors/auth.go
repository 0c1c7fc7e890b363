package interceptors

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	devicedomain "bottle-monitor/backend/internal/device/domain"
	"bottle-monitor/backend/internal/security"
)

const bearerPrefix = "bearer "

// Messages returned for rejected credentials.
const (
	MsgInvalidAuthorization = "missing or invalid authorization"
	MsgAccessTokenExpired   = "access token expired"
)

// AccessVerifier verifies user access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

// DeviceVerifier verifies device credentials.
type DeviceVerifier interface {
	VerifyDevice(token string) (devicedomain.Identity, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access
// token for methods of service and sets the principal id in context.
// publicMethods is the set of full method names that do not require a token; a
// valid token on a public method still sets the principal. Methods of other
// services pass through untouched.
func AuthUnary(verifier AccessVerifier, service string, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	prefix := "/" + service + "/"
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, MsgInvalidAuthorization)
		}

		principalID, err := verifier.VerifyAccess(token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			if errors.Is(err, security.ErrTokenExpired) {
				return nil, status.Error(codes.Unauthenticated, MsgAccessTokenExpired)
			}
			return nil, status.Error(codes.Unauthenticated, MsgInvalidAuthorization)
		}

		return handler(WithPrincipal(ctx, principalID), req)
	}
}

// DeviceAuthUnary returns a unary server interceptor that requires a Bearer
// device credential on every method of service and sets the device identity in
// context.
func DeviceAuthUnary(verifier DeviceVerifier, service string) grpc.UnaryServerInterceptor {
	prefix := "/" + service + "/"
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, MsgInvalidAuthorization)
		}
		id, err := verifier.VerifyDevice(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, MsgInvalidAuthorization)
		}
		return handler(WithDevice(ctx, id), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
