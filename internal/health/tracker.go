// Package health tracks per-automation validation outcomes and derives the
// validated-healthy gate.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// casAttempts bounds the read-modify-write retry loop under contention.
const casAttempts = 5

// Tracker maintains consecutive success/failure counters per automation.
// All mutation goes through versioned compare-and-swap so concurrent
// validations for the same automation never lose updates; a lost creation
// race is detected as a version conflict and retried against the winner's
// row.
type Tracker struct {
	store  provider.Store
	config types.HealingConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Tracker.
func New(store provider.Store, cfg types.HealingConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Record registers one validation outcome and returns the updated status.
//
// On success the consecutive-success counter advances and, at the configured
// threshold, flips the automation to validated healthy with a validation
// timestamp. Any failure unconditionally clears validated-healthy and resets
// the success streak.
func (t *Tracker) Record(ctx context.Context, instanceID, automationID string, success bool) (*types.AutomationHealthStatus, error) {
	if automationID == "" {
		return nil, fmt.Errorf("automation id is required")
	}
	var result *types.AutomationHealthStatus
	err := t.update(ctx, instanceID, automationID, func(status *types.AutomationHealthStatus) {
		status.TotalExecutions++
		if success {
			status.TotalSuccesses++
			status.ConsecutiveSuccesses++
			status.ConsecutiveFailures = 0
			if status.ConsecutiveSuccesses >= t.config.SuccessThreshold {
				if !status.IsValidatedHealthy {
					t.logger.Info("automation validated healthy",
						"automation", automationID,
						"streak", status.ConsecutiveSuccesses)
				}
				status.IsValidatedHealthy = true
				now := t.now()
				status.LastValidationAt = &now
			}
		} else {
			status.TotalFailures++
			status.ConsecutiveFailures++
			status.ConsecutiveSuccesses = 0
			status.IsValidatedHealthy = false
		}
		result = status
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReliabilityScore returns total successes over total executions, or 0.0 for
// an automation with no recorded executions.
func (t *Tracker) ReliabilityScore(ctx context.Context, instanceID, automationID string) (float64, error) {
	status, err := t.store.GetHealth(ctx, instanceID, automationID)
	if err != nil {
		return 0, fmt.Errorf("reading health for %s: %w", automationID, err)
	}
	if status == nil || status.TotalExecutions == 0 {
		return 0.0, nil
	}
	return float64(status.TotalSuccesses) / float64(status.TotalExecutions), nil
}

// Reset zeroes both consecutive counters and the validated-healthy gate
// while preserving lifetime totals. Used for manual re-baselining.
func (t *Tracker) Reset(ctx context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error) {
	var result *types.AutomationHealthStatus
	err := t.update(ctx, instanceID, automationID, func(status *types.AutomationHealthStatus) {
		status.ConsecutiveSuccesses = 0
		status.ConsecutiveFailures = 0
		status.IsValidatedHealthy = false
		result = status
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the stored status, or nil when the automation was never
// validated.
func (t *Tracker) Get(ctx context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error) {
	return t.store.GetHealth(ctx, instanceID, automationID)
}

// update runs a bounded CAS loop applying mutate to the current status.
func (t *Tracker) update(ctx context.Context, instanceID, automationID string, mutate func(*types.AutomationHealthStatus)) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		status, err := t.store.GetHealth(ctx, instanceID, automationID)
		if err != nil {
			return fmt.Errorf("reading health for %s: %w", automationID, err)
		}
		expected := 0
		if status == nil {
			status = &types.AutomationHealthStatus{
				InstanceID:   instanceID,
				AutomationID: automationID,
			}
		} else {
			expected = status.Version
		}

		mutate(status)
		status.UpdatedAt = t.now()
		status.Version = expected + 1

		ok, err := t.store.CompareAndSwapHealth(ctx, *status, expected)
		if err != nil {
			return fmt.Errorf("writing health for %s: %w", automationID, err)
		}
		if ok {
			return nil
		}
		// Create race or concurrent update: re-read and retry against the
		// winner's row so counters are never duplicated or lost.
	}
	return fmt.Errorf("health update for %s lost %d consecutive races", automationID, casAttempts)
}
