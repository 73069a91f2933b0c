// Package testutil provides shared test utilities for Halcyon.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyon-systems/halcyon/internal/platform"
)

// Compile-time interface satisfaction check.
var _ platform.Client = (*MockPlatform)(nil)

// MockPlatform is an in-memory platform.Client implementation for testing.
// States, history, and the device registry are seeded by tests; service and
// recovery calls are recorded and fail on demand via error injection.
type MockPlatform struct {
	mu       sync.Mutex
	states   map[string]platform.StateSample
	history  map[string][]platform.StateSample
	devices  map[string]platform.DeviceEntry
	byEntity map[string]string // entity id -> device id

	// Recorded calls, in order.
	serviceCalls []RecordedServiceCall
	reloads      []string
	reconnects   []string
	reboots      []string

	// Error injection: keyed by "domain.service/entity", device id, or
	// config entry id.
	serviceErrs   map[string]error
	reconnectErrs map[string]error
	rebootErrs    map[string]error
	reloadErrs    map[string]error

	callCount atomic.Int64
}

// RecordedServiceCall is one CallService invocation seen by the mock.
type RecordedServiceCall struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]interface{}
}

// NewMockPlatform creates an empty MockPlatform.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		states:        make(map[string]platform.StateSample),
		history:       make(map[string][]platform.StateSample),
		devices:       make(map[string]platform.DeviceEntry),
		byEntity:      make(map[string]string),
		serviceErrs:   make(map[string]error),
		reconnectErrs: make(map[string]error),
		rebootErrs:    make(map[string]error),
		reloadErrs:    make(map[string]error),
	}
}

// SetState seeds the current state of an entity.
func (m *MockPlatform) SetState(entityID, state string, attributes map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[entityID] = platform.StateSample{
		EntityID:   entityID,
		State:      state,
		Attributes: attributes,
		ChangedAt:  time.Now(),
	}
}

// AddHistory appends a historical sample for an entity.
func (m *MockPlatform) AddHistory(entityID string, sample platform.StateSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.EntityID = entityID
	m.history[entityID] = append(m.history[entityID], sample)
}

// AddDevice registers a device and maps its entities to it.
func (m *MockPlatform) AddDevice(entry platform.DeviceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[entry.DeviceID] = entry
	for _, entityID := range entry.EntityIDs {
		m.byEntity[entityID] = entry.DeviceID
	}
}

// FailService makes CallService fail for "domain.service/entity".
func (m *MockPlatform) FailService(domain, service, entityID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceErrs[domain+"."+service+"/"+entityID] = err
}

// FailReconnect makes ReconnectDevice fail for a device.
func (m *MockPlatform) FailReconnect(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectErrs[deviceID] = err
}

// FailReboot makes RebootDevice fail for a device.
func (m *MockPlatform) FailReboot(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebootErrs[deviceID] = err
}

// FailReload makes ReloadIntegration fail for a config entry.
func (m *MockPlatform) FailReload(entryID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadErrs[entryID] = err
}

// GetState implements platform.Client.
func (m *MockPlatform) GetState(_ context.Context, entityID string) (*platform.StateSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return &sample, nil
}

// GetHistory implements platform.Client.
func (m *MockPlatform) GetHistory(_ context.Context, entityID string, start, end time.Time) ([]platform.StateSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []platform.StateSample
	for _, s := range m.history[entityID] {
		if !s.ChangedAt.Before(start) && !s.ChangedAt.After(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

// CallService implements platform.Client.
func (m *MockPlatform) CallService(_ context.Context, domain, service, entityID string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Add(1)
	m.serviceCalls = append(m.serviceCalls, RecordedServiceCall{
		Domain:   domain,
		Service:  service,
		EntityID: entityID,
		Data:     data,
	})
	return m.serviceErrs[domain+"."+service+"/"+entityID]
}

// ReloadIntegration implements platform.Client.
func (m *MockPlatform) ReloadIntegration(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads = append(m.reloads, entryID)
	return m.reloadErrs[entryID]
}

// ReconnectDevice implements platform.Client.
func (m *MockPlatform) ReconnectDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects = append(m.reconnects, deviceID)
	return m.reconnectErrs[deviceID]
}

// RebootDevice implements platform.Client.
func (m *MockPlatform) RebootDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reboots = append(m.reboots, deviceID)
	return m.rebootErrs[deviceID]
}

// DeviceForEntity implements platform.Client.
func (m *MockPlatform) DeviceForEntity(_ context.Context, entityID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEntity[entityID], nil
}

// GetDevice implements platform.Client.
func (m *MockPlatform) GetDevice(_ context.Context, deviceID string) (*platform.DeviceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s not found", deviceID)
	}
	return &entry, nil
}

// ServiceCalls returns a copy of the recorded service calls.
func (m *MockPlatform) ServiceCalls() []RecordedServiceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedServiceCall, len(m.serviceCalls))
	copy(out, m.serviceCalls)
	return out
}

// Reloads returns a copy of the recorded integration reloads.
func (m *MockPlatform) Reloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reloads))
	copy(out, m.reloads)
	return out
}

// Reconnects returns a copy of the recorded device reconnects.
func (m *MockPlatform) Reconnects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reconnects))
	copy(out, m.reconnects)
	return out
}

// Reboots returns a copy of the recorded device reboots.
func (m *MockPlatform) Reboots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.reboots))
	copy(out, m.reboots)
	return out
}

// CallCount returns the number of CallService invocations.
func (m *MockPlatform) CallCount() int64 {
	return m.callCount.Load()
}
