package healer

import (
	"context"
	"log/slog"
	"time"

	"github.com/halcyon-systems/halcyon/internal/breaker"
	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// IntegrationHealResult is the aggregate outcome of an integration-level
// pass.
type IntegrationHealResult struct {
	Success               bool            `json:"success"`
	IntegrationsAttempted []string        `json:"integrationsAttempted"`
	IntegrationsReloaded  []string        `json:"integrationsReloaded"`
	IntegrationsSkipped   []string        `json:"integrationsSkipped"`
	EntityResults         map[string]bool `json:"entityResults"`
}

// IntegrationHealer reloads the config entries behind failed entities.
// Every reload is gated by the persistent circuit breaker; a skipped
// integration is never counted as a failure against the circuit.
type IntegrationHealer struct {
	platform platform.Client
	store    provider.Store
	breaker  *breaker.Breaker
	config   types.HealingConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewIntegrationHealer creates an IntegrationHealer.
func NewIntegrationHealer(client platform.Client, store provider.Store, brk *breaker.Breaker, cfg types.HealingConfig, logger *slog.Logger) *IntegrationHealer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &IntegrationHealer{
		platform: client,
		store:    store,
		breaker:  brk,
		config:   cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Heal resolves the config entries owning the given entities, reloads each
// one the breaker allows, then verifies entity states after the settle
// delay.
func (h *IntegrationHealer) Heal(ctx context.Context, cascadeID, instanceID string, entityIDs []string) (*IntegrationHealResult, error) {
	result := &IntegrationHealResult{
		EntityResults: make(map[string]bool, len(entityIDs)),
	}
	if len(entityIDs) == 0 {
		h.logger.Warn("integration heal invoked with no entities", "cascade", cascadeID)
		return result, nil
	}

	entries := h.configEntries(ctx, entityIDs)
	if len(entries) == 0 {
		for _, id := range entityIDs {
			result.EntityResults[id] = false
		}
		return result, nil
	}

	reloaded := 0
	for _, entryID := range entries {
		result.IntegrationsAttempted = append(result.IntegrationsAttempted, entryID)

		allowed, err := h.breaker.Allow(ctx, instanceID, entryID)
		if err != nil {
			return result, err
		}
		if !allowed {
			result.IntegrationsSkipped = append(result.IntegrationsSkipped, entryID)
			h.logger.Warn("integration reload skipped, circuit open",
				"cascade", cascadeID, "integration", entryID)
			h.event(ctx, types.EventCircuitBreakerSkipped, cascadeID, instanceID, entryID)
			continue
		}

		err = h.platform.ReloadIntegration(ctx, entryID)
		h.record(ctx, cascadeID, entryID, err)
		if err != nil {
			h.logger.Warn("integration reload failed",
				"cascade", cascadeID, "integration", entryID, "error", err)
			opened, ferr := h.breaker.RecordFailure(ctx, instanceID, entryID)
			if ferr != nil {
				return result, ferr
			}
			if opened {
				h.event(ctx, types.EventCircuitBreakerOpened, cascadeID, instanceID, entryID)
			}
			continue
		}

		reloaded++
		result.IntegrationsReloaded = append(result.IntegrationsReloaded, entryID)
		metrics.IntegrationReloads.Add(1)
		if err := h.breaker.RecordSuccess(ctx, instanceID, entryID); err != nil {
			return result, err
		}
	}

	if reloaded == 0 {
		for _, id := range entityIDs {
			result.EntityResults[id] = false
		}
		return result, nil
	}

	if err := h.sleep(ctx, h.config.VerificationDelay()); err != nil {
		return result, err
	}

	healthy, err := verifyEntities(ctx, h.platform, entityIDs)
	if err != nil {
		return result, err
	}
	healed := 0
	for id, ok := range healthy {
		result.EntityResults[id] = ok
		if ok {
			healed++
		}
	}
	result.Success = float64(healed)/float64(len(entityIDs)) >= h.config.PartialSuccessThreshold
	return result, nil
}

// configEntries resolves and deduplicates the config entry ids behind the
// given entities, preserving first-seen order.
func (h *IntegrationHealer) configEntries(ctx context.Context, entityIDs []string) []string {
	seen := make(map[string]bool)
	var entries []string
	for _, entityID := range entityIDs {
		deviceID, err := h.platform.DeviceForEntity(ctx, entityID)
		if err != nil || deviceID == "" {
			continue
		}
		entry, err := h.platform.GetDevice(ctx, deviceID)
		if err != nil || entry == nil {
			continue
		}
		for _, entryID := range entry.ConfigEntryIDs {
			if !seen[entryID] {
				seen[entryID] = true
				entries = append(entries, entryID)
			}
		}
	}
	return entries
}

func (h *IntegrationHealer) record(ctx context.Context, cascadeID, entryID string, attemptErr error) {
	rec := types.HealingAction{
		CascadeID:     cascadeID,
		Level:         types.LevelIntegration,
		Action:        types.ActionIntegrationReload,
		IntegrationID: entryID,
		Attempt:       1,
		Success:       attemptErr == nil,
		Timestamp:     time.Now(),
	}
	if attemptErr != nil {
		rec.ErrorMessage = attemptErr.Error()
	}
	if err := h.store.AppendHealingAction(ctx, rec); err != nil {
		h.logger.Warn("failed to record healing action", "integration", entryID, "error", err)
	}
}

func (h *IntegrationHealer) event(ctx context.Context, kind types.EventKind, cascadeID, instanceID, entryID string) {
	ev := types.Event{
		Kind:       kind,
		InstanceID: instanceID,
		CascadeID:  cascadeID,
		Details:    map[string]interface{}{"integrationId": entryID},
		Timestamp:  time.Now(),
	}
	if err := h.store.AppendEvent(ctx, ev); err != nil {
		h.logger.Warn("failed to append event", "kind", kind, "error", err)
	}
}
