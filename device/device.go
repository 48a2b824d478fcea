// Package device provides the per-installation identity attached to every
// signed request.
//
// The backend ties tokens and request signatures to a device registration, so
// the three identifiers below must stay stable for the lifetime of a logical
// installation. Callers that want to reuse a device registered through the
// official app pass its UUID to Load; everything else is generated fresh.
package device

import "github.com/google/uuid"

// Identity is the stable identity of one client installation.
// All fields are opaque to this library and immutable after creation.
type Identity struct {
	// DeviceUUID identifies the physical device registration.
	DeviceUUID string

	// ClientUUID identifies this client instance on the device.
	ClientUUID string

	// InstallID identifies the app installation, rotated on reinstall.
	InstallID string
}

// New generates a fresh identity from a cryptographically random source.
// Generation cannot fail short of entropy exhaustion, which panics.
func New() Identity {
	return Identity{
		DeviceUUID: uuid.New().String(),
		ClientUUID: uuid.New().String(),
		InstallID:  uuid.New().String(),
	}
}

// Load reconstructs an identity around an already registered device UUID.
// The client and installation identifiers are regenerated; the backend only
// requires the device registration to stay fixed.
func Load(deviceUUID string) Identity {
	id := New()
	if deviceUUID != "" {
		id.DeviceUUID = deviceUUID
	}
	return id
}

// Valid reports whether all identity fields are populated.
func (id Identity) Valid() bool {
	return id.DeviceUUID != "" && id.ClientUUID != "" && id.InstallID != ""
}
