// Package federated adapts external identity providers to the credential
// service. Only the authorization-code exchange is handled here; account
// resolution happens in the identity service.
package federated

import (
	"context"
	"errors"
)

var (
	// ErrExchangeFailed is returned when the provider rejects the code or the
	// profile cannot be fetched.
	ErrExchangeFailed = errors.New("federated exchange failed")
	// ErrNotConfigured is returned when no provider is configured.
	ErrNotConfigured = errors.New("federated login not configured")
	// ErrStateMismatch is returned when a callback carries a state that was not
	// issued, has expired or was already used.
	ErrStateMismatch = errors.New("federated state mismatch")
)

// Identity is the external account resolved from an authorization code.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
}

// Provider exchanges authorization codes with an external identity provider.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}
