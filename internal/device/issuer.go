// Package device issues and verifies credentials for field devices. Device
// credentials never expire and are not stored; they are signed in their own
// domain so a device key cannot forge user sessions.
package device

import (
	"bottle-monitor/backend/internal/device/domain"
	"bottle-monitor/backend/internal/security"
)

// Issuer mints and verifies device credentials.
type Issuer struct {
	tokens *security.TokenProvider
}

// NewIssuer returns an Issuer signing with the device domain of tokens.
func NewIssuer(tokens *security.TokenProvider) *Issuer {
	return &Issuer{tokens: tokens}
}

// Issue returns a device credential binding deviceID to resourceID.
func (i *Issuer) Issue(deviceID, resourceID string) (string, error) {
	id := domain.Identity{DeviceID: deviceID, ResourceID: resourceID}
	if err := id.Validate(); err != nil {
		return "", err
	}
	return i.tokens.SignDevice(id.DeviceID, id.ResourceID)
}

// Verify returns the identity bound by token, or security.ErrTokenMalformed.
func (i *Issuer) Verify(token string) (domain.Identity, error) {
	d, err := i.tokens.VerifyDevice(token)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{DeviceID: d.DeviceID, ResourceID: d.ResourceID}, nil
}
