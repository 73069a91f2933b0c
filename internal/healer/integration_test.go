package healer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/internal/breaker"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider/memory"
	"github.com/halcyon-systems/halcyon/internal/testutil"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

func newIntegrationHealer(mock *testutil.MockPlatform, store *memory.Store, cfg types.HealingConfig) *IntegrationHealer {
	brk := breaker.New(store, cfg, nil)
	h := NewIntegrationHealer(mock, store, brk, cfg, nil)
	h.sleep = noSleep
	return h
}

func seedIntegrationDevice(mock *testutil.MockPlatform) {
	mock.AddDevice(platform.DeviceEntry{
		DeviceID:       "dev-1",
		Integration:    "hue",
		ConfigEntryIDs: []string{"entry-hue"},
		EntityIDs:      []string{"light.kitchen"},
	})
}

func TestIntegrationHeal_ReloadRecovers(t *testing.T) {
	store := memory.New()
	mock := testutil.NewMockPlatform()
	seedIntegrationDevice(mock)
	mock.SetState("light.kitchen", "on", nil)

	h := newIntegrationHealer(mock, store, types.DefaultHealingConfig())
	result, err := h.Heal(context.Background(), "cas-1", "home", []string{"light.kitchen"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"entry-hue"}, result.IntegrationsReloaded)
	assert.Empty(t, result.IntegrationsSkipped)
	assert.Equal(t, []string{"entry-hue"}, mock.Reloads())

	// A successful reload resets the breaker.
	rec, err := store.GetBreaker(context.Background(), "home", "entry-hue")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.ConsecutiveFailures)
}

func TestIntegrationHeal_FailureCountsAgainstBreaker(t *testing.T) {
	store := memory.New()
	mock := testutil.NewMockPlatform()
	seedIntegrationDevice(mock)
	mock.FailReload("entry-hue", errors.New("integration wedged"))

	h := newIntegrationHealer(mock, store, types.DefaultHealingConfig())
	result, err := h.Heal(context.Background(), "cas-1", "home", []string{"light.kitchen"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.IntegrationsReloaded)
	assert.False(t, result.EntityResults["light.kitchen"])

	rec, err := store.GetBreaker(context.Background(), "home", "entry-hue")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
}

func TestIntegrationHeal_OpenBreakerSkipsReload(t *testing.T) {
	store := memory.New()
	mock := testutil.NewMockPlatform()
	seedIntegrationDevice(mock)
	mock.FailReload("entry-hue", errors.New("integration wedged"))

	cfg := types.DefaultHealingConfig()
	cfg.BreakerFailureThreshold = 2
	h := newIntegrationHealer(mock, store, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := h.Heal(ctx, "cas-1", "home", []string{"light.kitchen"})
		require.NoError(t, err)
	}
	require.Len(t, mock.Reloads(), 2)

	// Third pass: circuit is open, no reload attempted.
	result, err := h.Heal(ctx, "cas-2", "home", []string{"light.kitchen"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"entry-hue"}, result.IntegrationsSkipped)
	assert.Len(t, mock.Reloads(), 2)
}

func TestIntegrationHeal_NoResolvableEntriesFails(t *testing.T) {
	store := memory.New()
	mock := testutil.NewMockPlatform()
	mock.SetState("sensor.orphan", "unavailable", nil)

	h := newIntegrationHealer(mock, store, types.DefaultHealingConfig())
	result, err := h.Heal(context.Background(), "cas-1", "home", []string{"sensor.orphan"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.IntegrationsAttempted)
	assert.False(t, result.EntityResults["sensor.orphan"])
}
