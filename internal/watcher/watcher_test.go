package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/internal/provider/memory"
	"github.com/halcyon-systems/halcyon/internal/testutil"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// recordingValidator marks executions validated so the next sweep does not
// pick them up again.
type recordingValidator struct {
	store provider.Store

	mu   sync.Mutex
	seen []string
}

func (v *recordingValidator) Validate(ctx context.Context, executionID string, _ time.Duration) (*types.ValidationResult, error) {
	v.mu.Lock()
	v.seen = append(v.seen, executionID)
	v.mu.Unlock()
	if err := v.store.MarkExecutionValidated(ctx, executionID); err != nil {
		return nil, err
	}
	return &types.ValidationResult{ExecutionID: executionID}, nil
}

func (v *recordingValidator) validated() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.seen))
	copy(out, v.seen)
	return out
}

func seedExecution(t *testing.T, store provider.Store, executionID string, executedAt time.Time) {
	t.Helper()
	require.NoError(t, store.PutExecution(context.Background(), types.ExecutionRecord{
		ExecutionID:  executionID,
		InstanceID:   "home",
		AutomationID: "auto-1",
		ExecutedAt:   executedAt,
	}))
}

func TestWatcher_SweepsElapsedExecutions(t *testing.T) {
	store := memory.New()
	v := &recordingValidator{store: store}

	healing := types.DefaultHealingConfig()
	// Two executions past the 30s validation window, one still inside it.
	seedExecution(t, store, "exec-old-1", time.Now().Add(-2*time.Minute))
	seedExecution(t, store, "exec-old-2", time.Now().Add(-time.Minute))
	seedExecution(t, store, "exec-fresh", time.Now())

	w := New(store, v, "home", types.WatcherConfig{Interval: "50ms"}, healing, nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(v.validated()) == 2
	}, "watcher never validated the elapsed executions")

	assert.ElementsMatch(t, []string{"exec-old-1", "exec-old-2"}, v.validated())
}

func TestWatcher_PicksUpNewExecutions(t *testing.T) {
	store := memory.New()
	v := &recordingValidator{store: store}

	w := New(store, v, "home", types.WatcherConfig{Interval: "20ms"}, types.DefaultHealingConfig(), nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	seedExecution(t, store, "exec-late", time.Now().Add(-time.Minute))

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(v.validated()) == 1
	}, "watcher never picked up the late-seeded execution")
}

func TestWatcher_DisabledNeverSweeps(t *testing.T) {
	store := memory.New()
	v := &recordingValidator{store: store}
	seedExecution(t, store, "exec-old", time.Now().Add(-time.Minute))

	disabled := false
	w := New(store, v, "home", types.WatcherConfig{Enabled: &disabled, Interval: "10ms"}, types.DefaultHealingConfig(), nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, v.validated())
}

func TestWatcher_StopHaltsSweeping(t *testing.T) {
	store := memory.New()
	v := &recordingValidator{store: store}

	w := New(store, v, "home", types.WatcherConfig{Interval: "20ms"}, types.DefaultHealingConfig(), nil)
	w.Start(context.Background())
	w.Stop(context.Background())

	seedExecution(t, store, "exec-after-stop", time.Now().Add(-time.Minute))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, v.validated())
}
