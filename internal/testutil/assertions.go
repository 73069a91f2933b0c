package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForEvent polls until an event of the given kind exists for the
// instance.
func WaitForEvent(t *testing.T, store provider.Store, instanceID string, kind types.EventKind, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		events, err := store.ListEvents(context.Background(), instanceID, 1000)
		if err != nil {
			return false
		}
		for _, e := range events {
			if e.Kind == kind {
				return true
			}
		}
		return false
	}, "event "+string(kind))
}

// WaitForCascade polls until at least one cascade result exists for the
// automation, returning the newest.
func WaitForCascade(t *testing.T, store provider.Store, instanceID, automationID string, timeout time.Duration) types.CascadeResult {
	t.Helper()
	var result types.CascadeResult
	WaitFor(t, timeout, func() bool {
		results, err := store.ListCascadeResults(context.Background(), instanceID, automationID, 1)
		if err != nil || len(results) == 0 {
			return false
		}
		result = results[0]
		return true
	}, "cascade result for "+automationID)
	return result
}
