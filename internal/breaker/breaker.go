// Package breaker implements the per-integration circuit breaker that gates
// integration-level healing. State lives in the store as a versioned record
// so concurrent cascades targeting the same integration converge through
// compare-and-swap instead of racing an in-process counter.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// casAttempts bounds the read-modify-write retry loop under contention.
const casAttempts = 5

// Breaker gates integration reload attempts behind a failure-threshold
// circuit.
type Breaker struct {
	store  provider.Store
	config types.HealingConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Breaker.
func New(store provider.Store, cfg types.HealingConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &Breaker{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether an integration reload may proceed. A missing record
// means the circuit has never tripped and the attempt is allowed.
func (b *Breaker) Allow(ctx context.Context, instanceID, integrationID string) (bool, error) {
	rec, err := b.store.GetBreaker(ctx, instanceID, integrationID)
	if err != nil {
		return false, fmt.Errorf("reading breaker for %s: %w", integrationID, err)
	}
	if rec == nil {
		return true, nil
	}
	if rec.Open(b.now()) {
		metrics.BreakerSkips.Add(1)
		return false, nil
	}
	return true, nil
}

// RecordSuccess resets the failure counter and clears any open window.
func (b *Breaker) RecordSuccess(ctx context.Context, instanceID, integrationID string) error {
	return b.update(ctx, instanceID, integrationID, func(rec *types.CircuitBreakerRecord) {
		rec.ConsecutiveFailures = 0
		rec.OpenUntil = nil
	})
}

// RecordFailure increments the failure counter, opening the circuit for the
// configured cooldown once the threshold is reached. Returns whether this
// failure opened the circuit.
func (b *Breaker) RecordFailure(ctx context.Context, instanceID, integrationID string) (bool, error) {
	var opened bool
	err := b.update(ctx, instanceID, integrationID, func(rec *types.CircuitBreakerRecord) {
		opened = false
		rec.ConsecutiveFailures++
		if rec.ConsecutiveFailures >= b.config.BreakerFailureThreshold {
			until := b.now().Add(b.config.BreakerCooldown())
			rec.OpenUntil = &until
			opened = true
		}
	})
	if err != nil {
		return false, err
	}
	if opened {
		metrics.BreakerOpens.Add(1)
		b.logger.Warn("circuit breaker opened",
			"integration", integrationID,
			"failures", b.config.BreakerFailureThreshold,
			"cooldown", b.config.BreakerCooldown())
	}
	return opened, nil
}

// update runs a bounded CAS loop applying mutate to the current record.
func (b *Breaker) update(ctx context.Context, instanceID, integrationID string, mutate func(*types.CircuitBreakerRecord)) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := b.store.GetBreaker(ctx, instanceID, integrationID)
		if err != nil {
			return fmt.Errorf("reading breaker for %s: %w", integrationID, err)
		}
		expected := 0
		if rec == nil {
			rec = &types.CircuitBreakerRecord{
				InstanceID:    instanceID,
				IntegrationID: integrationID,
			}
		} else {
			expected = rec.Version
		}

		mutate(rec)
		rec.UpdatedAt = b.now()
		rec.Version = expected + 1

		ok, err := b.store.CompareAndSwapBreaker(ctx, *rec, expected)
		if err != nil {
			return fmt.Errorf("writing breaker for %s: %w", integrationID, err)
		}
		if ok {
			return nil
		}
		// Version conflict: another cascade updated the record first.
	}
	return fmt.Errorf("breaker update for %s lost %d consecutive races", integrationID, casAttempts)
}
