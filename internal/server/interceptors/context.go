package interceptors

import (
	"context"

	devicedomain "bottle-monitor/backend/internal/device/domain"
)

type contextKey struct{ name string }

var (
	principalIDKey = contextKey{"principal_id"}
	deviceKey      = contextKey{"device"}
)

// WithPrincipal returns a context carrying the authenticated principal id.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalIDKey, principalID)
}

// GetPrincipalID returns the principal id from context and true if set; otherwise "", false.
func GetPrincipalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalIDKey).(string)
	return v, ok && v != ""
}

// WithDevice returns a context carrying the authenticated device identity.
func WithDevice(ctx context.Context, id devicedomain.Identity) context.Context {
	return context.WithValue(ctx, deviceKey, id)
}

// GetDevice returns the device identity from context and true if set.
func GetDevice(ctx context.Context) (devicedomain.Identity, bool) {
	v, ok := ctx.Value(deviceKey).(devicedomain.Identity)
	return v, ok
}
