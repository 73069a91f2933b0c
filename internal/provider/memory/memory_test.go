package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

func TestCompareAndSwapHealth(t *testing.T) {
	s := New()
	ctx := context.Background()

	status := types.AutomationHealthStatus{
		InstanceID:   "home",
		AutomationID: "auto-1",
		Version:      1,
	}

	// Version 0 means create-if-absent.
	ok, err := s.CompareAndSwapHealth(ctx, status, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwapHealth(ctx, status, 0)
	require.NoError(t, err)
	assert.False(t, ok, "create fails once the record exists")

	status.Version = 2
	status.TotalSuccesses = 1
	ok, err = s.CompareAndSwapHealth(ctx, status, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer loses.
	stale := status
	stale.Version = 2
	ok, err = s.CompareAndSwapHealth(ctx, stale, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetHealth(ctx, "home", "auto-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 1, got.TotalSuccesses)
}

func TestCompareAndSwapBreaker(t *testing.T) {
	s := New()
	ctx := context.Background()

	record := types.CircuitBreakerRecord{
		InstanceID:    "home",
		IntegrationID: "zha",
		Version:       1,
	}
	ok, err := s.CompareAndSwapBreaker(ctx, record, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	record.Version = 2
	record.ConsecutiveFailures = 3
	ok, err = s.CompareAndSwapBreaker(ctx, record, 99)
	require.NoError(t, err)
	assert.False(t, ok, "wrong expected version")

	got, err := s.GetBreaker(ctx, "home", "zha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.ConsecutiveFailures, "failed swap leaves the record untouched")

	missing, err := s.GetBreaker(ctx, "home", "zwave_js")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPendingExecutions(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	put := func(id string, executedAt time.Time, validated bool) {
		require.NoError(t, s.PutExecution(ctx, types.ExecutionRecord{
			ExecutionID:  id,
			InstanceID:   "home",
			AutomationID: "auto-1",
			ExecutedAt:   executedAt,
			Validated:    validated,
		}))
	}
	put("newest", base.Add(-time.Minute), false)
	put("oldest", base.Add(-time.Hour), false)
	put("middle", base.Add(-30*time.Minute), false)
	put("done", base.Add(-2*time.Hour), true)
	put("fresh", base.Add(time.Hour), false)

	pending, err := s.ListPendingExecutions(ctx, "home", base, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "oldest", pending[0].ExecutionID, "oldest first")
	assert.Equal(t, "middle", pending[1].ExecutionID)
	assert.Equal(t, "newest", pending[2].ExecutionID)

	limited, err := s.ListPendingExecutions(ctx, "home", base, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "oldest", limited[0].ExecutionID)

	require.NoError(t, s.MarkExecutionValidated(ctx, "oldest"))
	pending, err = s.ListPendingExecutions(ctx, "home", base, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestLastServiceCall(t *testing.T) {
	s := New()
	ctx := context.Background()

	got, err := s.LastServiceCall(ctx, "home", "light.kitchen")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, brightness := range []int{100, 200} {
		require.NoError(t, s.PutServiceCall(ctx, types.ServiceCall{
			InstanceID: "home",
			EntityID:   "light.kitchen",
			Domain:     "light",
			Service:    "turn_on",
			Data:       map[string]interface{}{"brightness": brightness},
		}))
	}

	got, err = s.LastServiceCall(ctx, "home", "light.kitchen")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 200, got.Data["brightness"], "latest call wins")
}

func TestListCascadeResultsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, s.PutCascadeResult(ctx, types.CascadeResult{
			CascadeID:    id,
			InstanceID:   "home",
			AutomationID: "auto-1",
		}))
	}

	results, err := s.ListCascadeResults(ctx, "home", "auto-1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c3", results[0].CascadeID)
	assert.Equal(t, "c2", results[1].CascadeID)

	all, err := s.ListCascadeResults(ctx, "home", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "empty automation filter matches all")
}

func TestListEventsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	kinds := []types.EventKind{
		types.EventCascadeStarted,
		types.EventLevelAttempted,
		types.EventCascadeCompleted,
	}
	for _, kind := range kinds {
		require.NoError(t, s.AppendEvent(ctx, types.Event{
			Kind:       kind,
			InstanceID: "home",
		}))
	}

	events, err := s.ListEvents(ctx, "home", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventCascadeCompleted, events[0].Kind)
	assert.Equal(t, types.EventLevelAttempted, events[1].Kind)
}

func TestDesiredStateRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	ds := types.DesiredState{
		InstanceID:   "home",
		AutomationID: "auto-1",
		EntityID:     "light.kitchen",
		State:        "on",
		Confidence:   0.5,
	}
	require.NoError(t, s.PutDesiredState(ctx, ds))

	ds.Confidence = 0.8
	require.NoError(t, s.PutDesiredState(ctx, ds))

	got, err := s.GetDesiredState(ctx, "home", "auto-1", "light.kitchen")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.8, got.Confidence, "put replaces the prior row")

	listed, err := s.ListDesiredStates(ctx, "home", "auto-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
