package validator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/internal/health"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider/memory"
	"github.com/halcyon-systems/halcyon/internal/tasks"
	"github.com/halcyon-systems/halcyon/internal/testutil"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []types.HealingContext
}

func (r *recordingRunner) Heal(_ context.Context, hctx types.HealingContext) (*types.CascadeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, hctx)
	return &types.CascadeResult{}, nil
}

func (r *recordingRunner) contexts() []types.HealingContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.HealingContext, len(r.runs))
	copy(out, r.runs)
	return out
}

type fixture struct {
	validator *Validator
	store     *memory.Store
	mock      *testutil.MockPlatform
	runner    *recordingRunner
	registry  *tasks.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	mock := testutil.NewMockPlatform()
	runner := &recordingRunner{}
	registry := tasks.NewRegistry(context.Background(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Drain(ctx)
	})
	cfg := types.DefaultHealingConfig()
	tracker := health.New(store, cfg, nil)
	return &fixture{
		validator: New(store, mock, tracker, runner, registry, cfg, nil),
		store:     store,
		mock:      mock,
		runner:    runner,
		registry:  registry,
	}
}

func (f *fixture) seedExecution(t *testing.T, executedAt time.Time) types.ExecutionRecord {
	t.Helper()
	rec := types.ExecutionRecord{
		ExecutionID:  "exec-1",
		InstanceID:   "home",
		AutomationID: "auto-1",
		ExecutedAt:   executedAt,
	}
	require.NoError(t, f.store.PutExecution(context.Background(), rec))
	return rec
}

func (f *fixture) seedDesired(t *testing.T, entityID, state string, attrs map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.store.PutDesiredState(context.Background(), types.DesiredState{
		InstanceID:   "home",
		AutomationID: "auto-1",
		EntityID:     entityID,
		State:        state,
		Attributes:   attrs,
		Confidence:   0.5,
	}))
}

func TestValidate_AchievedOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executedAt := time.Now().Add(-time.Minute)
	f.seedExecution(t, executedAt)
	f.seedDesired(t, "light.kitchen", "on", map[string]interface{}{"brightness": 200})
	f.mock.AddHistory("light.kitchen", platform.StateSample{
		State:      "on",
		Attributes: map[string]interface{}{"brightness": 198.0},
		ChangedAt:  executedAt.Add(2 * time.Second),
	})

	result, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.False(t, result.CascadeQueued)
	require.Len(t, result.Entities, 1)
	assert.True(t, result.Entities[0].Achieved)
	assert.Equal(t, int64(2000), result.Entities[0].TimeToAchievement)

	exec, err := f.store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, exec.Validated)

	stored, err := f.store.ListValidations(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	status, err := f.store.GetHealth(ctx, "home", "auto-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 1, status.ConsecutiveSuccesses)

	assert.Empty(t, f.runner.contexts(), "no cascade for achieved outcome")
}

func TestValidate_SuccessLearnsPattern(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executedAt := time.Now().Add(-time.Minute)
	f.seedExecution(t, executedAt)
	f.seedDesired(t, "light.kitchen", "on", nil)
	f.mock.AddHistory("light.kitchen", platform.StateSample{
		State:     "on",
		ChangedAt: executedAt.Add(time.Second),
	})

	_, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)

	pattern, err := f.store.GetPattern(ctx, "home", "auto-1", "light.kitchen")
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, "on", pattern.ObservedState)
	assert.Equal(t, 1, pattern.OccurrenceCount)

	// One observation promotes the desired state to 0.5 + 0.1.
	ds, err := f.store.GetDesiredState(ctx, "home", "auto-1", "light.kitchen")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.InDelta(t, 0.6, ds.Confidence, 1e-9)

	// Revalidating increments the same row instead of duplicating it.
	_, err = f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)

	patterns, err := f.store.ListPatterns(ctx, "home", "auto-1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].OccurrenceCount)
}

func TestValidate_FailureQueuesCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executedAt := time.Now().Add(-time.Minute)
	f.seedExecution(t, executedAt)
	f.seedDesired(t, "light.kitchen", "on", nil)
	f.seedDesired(t, "light.hall", "on", nil)
	f.mock.AddHistory("light.kitchen", platform.StateSample{
		State:     "on",
		ChangedAt: executedAt.Add(time.Second),
	})
	f.mock.AddHistory("light.hall", platform.StateSample{
		State:     "unavailable",
		ChangedAt: executedAt.Add(time.Second),
	})

	result, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.True(t, result.CascadeQueued)

	require.NoError(t, f.registry.Drain(ctx))
	runs := f.runner.contexts()
	require.Len(t, runs, 1)
	assert.Equal(t, "auto-1", runs[0].AutomationID)
	assert.Equal(t, types.OutcomeFailure, runs[0].Trigger)
	assert.Equal(t, []string{"light.hall"}, runs[0].FailedEntities, "only the failed entity is healed")

	status, err := f.store.GetHealth(ctx, "home", "auto-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 1, status.TotalFailures)
	assert.Equal(t, 0, status.ConsecutiveSuccesses)
}

func TestValidate_NoDesiredStatesSkipsHealthAndHealing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedExecution(t, time.Now().Add(-time.Minute))

	result, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.False(t, result.CascadeQueued)
	assert.Empty(t, result.Entities)

	// No learned states yet: the automation is not penalized.
	status, err := f.store.GetHealth(ctx, "home", "auto-1")
	require.NoError(t, err)
	assert.Nil(t, status)

	exec, err := f.store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, exec.Validated, "execution leaves the pending set either way")
}

func TestValidate_NoHistoryIsNotAchieved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedExecution(t, time.Now().Add(-time.Minute))
	f.seedDesired(t, "cover.garage", "closed", nil)
	// The entity currently reads the desired state, but nothing was
	// observed inside the window: not achieved.
	f.mock.SetState("cover.garage", "closed", nil)

	result, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)
	assert.False(t, result.OverallSuccess)
	require.Len(t, result.Entities, 1)
	assert.False(t, result.Entities[0].Achieved)
	assert.Equal(t, "no state observations in validation window", result.Entities[0].Reason)
}

func TestValidate_TransientMatchIsNotAchieved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executedAt := time.Now().Add(-time.Minute)
	f.seedExecution(t, executedAt)
	f.seedDesired(t, "light.bedroom", "on", nil)
	// The light came on briefly and reverted inside the window; the last
	// sample decides achievement.
	f.mock.AddHistory("light.bedroom", platform.StateSample{
		State:     "on",
		ChangedAt: executedAt.Add(2 * time.Second),
	})
	f.mock.AddHistory("light.bedroom", platform.StateSample{
		State:     "off",
		ChangedAt: executedAt.Add(5 * time.Second),
	})

	result, err := f.validator.Validate(ctx, "exec-1", 0)
	require.NoError(t, err)
	assert.False(t, result.OverallSuccess)
	require.Len(t, result.Entities, 1)
	assert.False(t, result.Entities[0].Achieved)
	assert.Equal(t, "off", result.Entities[0].ActualState)
}

func TestValidate_UnknownExecution(t *testing.T) {
	f := newFixture(t)
	_, err := f.validator.Validate(context.Background(), "missing", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidate_WindowBoundsHistoryLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	executedAt := time.Now().Add(-time.Hour)
	f.seedExecution(t, executedAt)
	f.seedDesired(t, "light.kitchen", "on", nil)
	// The matching sample lands after the 30s window, so nothing was
	// observed inside it.
	f.mock.AddHistory("light.kitchen", platform.StateSample{
		State:     "on",
		ChangedAt: executedAt.Add(5 * time.Minute),
	})
	f.mock.SetState("light.kitchen", "off", nil)

	result, err := f.validator.Validate(ctx, "exec-1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, result.OverallSuccess)
	require.Len(t, result.Entities, 1)
	assert.NotEmpty(t, result.Entities[0].Reason)
}
