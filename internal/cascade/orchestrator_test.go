package cascade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/internal/healer"
	"github.com/halcyon-systems/halcyon/internal/provider/memory"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// stubEntity heals the entities listed in heals; others fail.
type stubEntity struct {
	heals map[string]bool
	calls []string
	block bool
}

func (s *stubEntity) Heal(ctx context.Context, _, _, entityID string) (*healer.EntityHealResult, error) {
	if s.block {
		<-ctx.Done()
		return &healer.EntityHealResult{EntityID: entityID}, ctx.Err()
	}
	s.calls = append(s.calls, entityID)
	return &healer.EntityHealResult{
		EntityID:    entityID,
		Success:     s.heals[entityID],
		FinalAction: types.ActionRetryService,
	}, nil
}

type stubDevice struct {
	result *types.DeviceHealResult
	calls  [][]string
}

func (s *stubDevice) Heal(_ context.Context, _ string, entityIDs []string) (*types.DeviceHealResult, error) {
	s.calls = append(s.calls, entityIDs)
	if s.result != nil {
		return s.result, nil
	}
	return &types.DeviceHealResult{EntityResults: map[string]bool{}}, nil
}

type stubIntegration struct {
	result *healer.IntegrationHealResult
	calls  [][]string
}

func (s *stubIntegration) Heal(_ context.Context, _, _ string, entityIDs []string) (*healer.IntegrationHealResult, error) {
	s.calls = append(s.calls, entityIDs)
	if s.result != nil {
		return s.result, nil
	}
	return &healer.IntegrationHealResult{EntityResults: map[string]bool{}}, nil
}

type stubAlerter struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (s *stubAlerter) Notify(_ context.Context, a types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *stubAlerter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func healingContext(entities ...string) types.HealingContext {
	return types.HealingContext{
		InstanceID:     "home",
		AutomationID:   "auto-1",
		ExecutionID:    "exec-1",
		Trigger:        types.OutcomeFailure,
		FailedEntities: entities,
	}
}

func TestHeal_EntityLevelSufficient(t *testing.T) {
	store := memory.New()
	entity := &stubEntity{heals: map[string]bool{"light.a": true, "light.b": true}}
	device := &stubDevice{}
	o := New(store, entity, device, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	result, err := o.Heal(context.Background(), healingContext("light.a", "light.b"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, types.LevelEntity, result.SuccessfulLevel)
	assert.Equal(t, types.RoutingSequential, result.RoutingStrategy)
	assert.Equal(t, []types.HealingLevel{types.LevelEntity}, result.LevelsAttempted)
	assert.Empty(t, device.calls, "no escalation after entity success")

	stored, err := store.ListCascadeResults(context.Background(), "home", "auto-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.CascadeID, stored[0].CascadeID)
}

func TestHeal_EscalatesOnlyUnhealedEntities(t *testing.T) {
	store := memory.New()
	entity := &stubEntity{heals: map[string]bool{"light.a": true}}
	device := &stubDevice{result: &types.DeviceHealResult{
		Success:       true,
		FinalAction:   types.ActionDeviceReconnect,
		EntityResults: map[string]bool{"light.b": true, "light.c": true},
	}}
	o := New(store, entity, device, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	result, err := o.Heal(context.Background(), healingContext("light.a", "light.b", "light.c"))
	require.NoError(t, err)

	// light.b and light.c stayed failed after the entity level, so the
	// cascade escalated and passed only them upward.
	require.Len(t, device.calls, 1)
	assert.Equal(t, []string{"light.b", "light.c"}, device.calls[0])

	assert.True(t, result.Success)
	assert.Equal(t, types.LevelEntity, result.SuccessfulLevel, "first level that healed anything")
	assert.Equal(t, []types.HealingLevel{types.LevelEntity, types.LevelDevice}, result.LevelsAttempted)
	assert.True(t, result.EntityResults["light.a"], "entity-level win is preserved")
}

func TestHeal_SplitLevelsHealAllEntities(t *testing.T) {
	store := memory.New()
	entity := &stubEntity{heals: map[string]bool{"light.a": true}}
	device := &stubDevice{result: &types.DeviceHealResult{
		Success:       true,
		FinalAction:   types.ActionDeviceReconnect,
		EntityResults: map[string]bool{"light.b": true},
	}}
	integration := &stubIntegration{}
	o := New(store, entity, device, integration, nil, types.DefaultHealingConfig(), nil)

	ctx := context.Background()
	result, err := o.Heal(ctx, healingContext("light.a", "light.b"))
	require.NoError(t, err)

	// Entity level heals one, device level heals the other: both levels
	// attempted, both entities end healed, integration never reached.
	assert.True(t, result.Success)
	assert.Equal(t, []types.HealingLevel{types.LevelEntity, types.LevelDevice}, result.LevelsAttempted)
	assert.True(t, result.EntityResults["light.a"])
	assert.True(t, result.EntityResults["light.b"])
	assert.Empty(t, integration.calls)

	// Each entity learns the level that actually healed it.
	pa, err := store.GetPattern(ctx, "home", "auto-1", "light.a")
	require.NoError(t, err)
	require.NotNil(t, pa)
	assert.Equal(t, types.LevelEntity, pa.SuccessfulLevel)

	pb, err := store.GetPattern(ctx, "home", "auto-1", "light.b")
	require.NoError(t, err)
	require.NotNil(t, pb)
	assert.Equal(t, types.LevelDevice, pb.SuccessfulLevel)
}

func TestHeal_PartialHealExhaustsRemainingLevels(t *testing.T) {
	store := memory.New()
	alerter := &stubAlerter{}
	entity := &stubEntity{heals: map[string]bool{"light.a": true}}
	o := New(store, entity, &stubDevice{}, &stubIntegration{}, alerter, types.DefaultHealingConfig(), nil)

	ctx := context.Background()
	result, err := o.Heal(ctx, healingContext("light.a", "light.b"))
	require.NoError(t, err)

	// light.b stays failed through every level, but one healed entity
	// still makes the cascade a success and stamps its pattern.
	assert.True(t, result.Success)
	assert.Equal(t, []types.HealingLevel{types.LevelEntity, types.LevelDevice, types.LevelIntegration}, result.LevelsAttempted)
	assert.True(t, result.EntityResults["light.a"])
	assert.False(t, result.EntityResults["light.b"])
	assert.False(t, result.PlanRequested)
	assert.Equal(t, 0, alerter.count())

	pattern, err := store.GetPattern(ctx, "home", "auto-1", "light.a")
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, types.LevelEntity, pattern.SuccessfulLevel)
	assert.Equal(t, 1, pattern.HealingSuccesses)
}

func TestHeal_ExhaustionFlagsPlanGeneration(t *testing.T) {
	store := memory.New()
	alerter := &stubAlerter{}
	o := New(store, &stubEntity{}, &stubDevice{}, &stubIntegration{}, alerter, types.DefaultHealingConfig(), nil)

	result, err := o.Heal(context.Background(), healingContext("light.a"))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.PlanRequested)
	assert.Equal(t, []types.HealingLevel{types.LevelEntity, types.LevelDevice, types.LevelIntegration}, result.LevelsAttempted)
	assert.Equal(t, 1, alerter.count())
}

func TestHeal_IntelligentRoutingSkipsToLearnedLevel(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, entityID := range []string{"light.a", "light.b", "light.c"} {
		require.NoError(t, store.PutPattern(ctx, types.OutcomePattern{
			InstanceID:      "home",
			AutomationID:    "auto-1",
			EntityID:        entityID,
			SuccessfulLevel: types.LevelDevice,
		}))
	}

	entity := &stubEntity{}
	device := &stubDevice{result: &types.DeviceHealResult{
		Success:       true,
		FinalAction:   types.ActionDeviceReconnect,
		EntityResults: map[string]bool{"light.a": true, "light.b": true, "light.c": true},
	}}
	o := New(store, entity, device, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	result, err := o.Heal(ctx, healingContext("light.a", "light.b", "light.c"))
	require.NoError(t, err)

	assert.Equal(t, types.RoutingIntelligent, result.RoutingStrategy)
	assert.Equal(t, []types.HealingLevel{types.LevelDevice}, result.LevelsAttempted)
	assert.Empty(t, entity.calls, "entity level skipped by routing")
}

func TestHeal_MinorityPatternRoutesSequentially(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	// Learned levels split one-to-one across the failed entities: no
	// level has a strict majority.
	require.NoError(t, store.PutPattern(ctx, types.OutcomePattern{
		InstanceID:      "home",
		AutomationID:    "auto-1",
		EntityID:        "light.a",
		SuccessfulLevel: types.LevelIntegration,
	}))
	require.NoError(t, store.PutPattern(ctx, types.OutcomePattern{
		InstanceID:      "home",
		AutomationID:    "auto-1",
		EntityID:        "light.b",
		SuccessfulLevel: types.LevelDevice,
	}))

	entity := &stubEntity{heals: map[string]bool{"light.a": true, "light.b": true}}
	o := New(store, entity, &stubDevice{}, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	result, err := o.Heal(ctx, healingContext("light.a", "light.b"))
	require.NoError(t, err)
	assert.Equal(t, types.RoutingSequential, result.RoutingStrategy)
	assert.Equal(t, types.LevelEntity, result.LevelsAttempted[0])
}

func TestHeal_SuccessRecordsPatternOutcome(t *testing.T) {
	store := memory.New()
	entity := &stubEntity{heals: map[string]bool{"light.a": true}}
	o := New(store, entity, &stubDevice{}, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	ctx := context.Background()
	result, err := o.Heal(ctx, healingContext("light.a"))
	require.NoError(t, err)
	require.True(t, result.Success)

	pattern, err := store.GetPattern(ctx, "home", "auto-1", "light.a")
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, types.LevelEntity, pattern.SuccessfulLevel)
	assert.Equal(t, 1, pattern.HealingSuccesses)
}

func TestHeal_TimeoutProducesFailedResult(t *testing.T) {
	store := memory.New()
	entity := &stubEntity{block: true}
	o := New(store, entity, &stubDevice{}, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)

	hctx := healingContext("light.a")
	hctx.TimeoutSeconds = 1

	start := time.Now()
	result, err := o.Heal(context.Background(), hctx)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)

	stored, err := store.ListCascadeResults(context.Background(), "home", "auto-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1, "timed-out cascade still persisted")
}

func TestHeal_NoEntitiesIsAnError(t *testing.T) {
	o := New(memory.New(), &stubEntity{}, &stubDevice{}, &stubIntegration{}, nil, types.DefaultHealingConfig(), nil)
	_, err := o.Heal(context.Background(), healingContext())
	require.Error(t, err)
}
