package domain

import (
	"errors"
	"strings"
)

// ErrInvalidDeviceIdentity is returned when a device or resource id is empty.
var ErrInvalidDeviceIdentity = errors.New("device id and resource id are required")

// Identity binds a field device to the resource it reports on.
type Identity struct {
	DeviceID   string
	ResourceID string
}

// Validate trims both ids and fails with ErrInvalidDeviceIdentity if either is empty.
func (i *Identity) Validate() error {
	i.DeviceID = strings.TrimSpace(i.DeviceID)
	i.ResourceID = strings.TrimSpace(i.ResourceID)
	if i.DeviceID == "" || i.ResourceID == "" {
		return ErrInvalidDeviceIdentity
	}
	return nil
}
