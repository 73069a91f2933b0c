// Package platform defines the client interface to the remote
// home-automation platform: entity state, history, service calls, and the
// entity/device registry.
package platform

import (
	"context"
	"time"
)

// StateSample is one observed entity state, either current or historical.
type StateSample struct {
	EntityID   string                 `json:"entityId"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	ChangedAt  time.Time              `json:"changedAt"`
}

// DeviceEntry describes a registry device: the physical unit owning one or
// more entities, reachable through an integration config entry.
type DeviceEntry struct {
	DeviceID       string   `json:"deviceId"`
	Manufacturer   string   `json:"manufacturer,omitempty"`
	Model          string   `json:"model,omitempty"`
	Integration    string   `json:"integration,omitempty"`
	ConfigEntryIDs []string `json:"configEntryIds,omitempty"`
	EntityIDs      []string `json:"entityIds,omitempty"`
}

// Client is the platform API surface the healing engine depends on.
// Implementations must return an error for failed service calls rather than
// encoding failure in a payload.
type Client interface {
	// GetState returns the current state of an entity.
	GetState(ctx context.Context, entityID string) (*StateSample, error)

	// GetHistory returns the state-change samples for an entity in
	// [start, end], oldest first.
	GetHistory(ctx context.Context, entityID string, start, end time.Time) ([]StateSample, error)

	// CallService invokes a platform service against a target entity.
	CallService(ctx context.Context, domain, service, entityID string, data map[string]interface{}) error

	// ReloadIntegration reloads an integration's configuration entry.
	ReloadIntegration(ctx context.Context, entryID string) error

	// ReconnectDevice asks the owning integration to re-establish the
	// device's link without a power cycle.
	ReconnectDevice(ctx context.Context, deviceID string) error

	// RebootDevice power-cycles a device. Only meaningful for families
	// that support it; callers gate on capability first.
	RebootDevice(ctx context.Context, deviceID string) error

	// DeviceForEntity resolves the owning device of an entity. Returns
	// an empty id (and nil error) for entities without a device.
	DeviceForEntity(ctx context.Context, entityID string) (string, error)

	// GetDevice returns the registry entry for a device.
	GetDevice(ctx context.Context, deviceID string) (*DeviceEntry, error)
}
