package service

import (
	"errors"
	"fmt"

	devicedomain "bottle-monitor/backend/internal/device/domain"
	"bottle-monitor/backend/internal/federated"
	"bottle-monitor/backend/internal/security"
	sessionservice "bottle-monitor/backend/internal/session/service"
)

// Sentinel errors for the auth service; the handler maps them to gRPC codes.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidOrStaleToken    = errors.New("invalid or stale refresh token")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrNotFound               = errors.New("principal not found")

	ErrTokenExpired           = security.ErrTokenExpired
	ErrTokenMalformed         = security.ErrTokenMalformed
	ErrStoreUnavailable       = sessionservice.ErrStoreUnavailable
	ErrInvalidDeviceIdentity  = devicedomain.ErrInvalidDeviceIdentity
	ErrFederatedNotConfigured = federated.ErrNotConfigured
	ErrFederatedState         = federated.ErrStateMismatch
	ErrFederatedExchange      = federated.ErrExchangeFailed
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func storeError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
