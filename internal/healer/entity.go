package healer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// EntityHealResult is the aggregate outcome of one entity-level heal.
type EntityHealResult struct {
	EntityID         string             `json:"entityId"`
	Success          bool               `json:"success"`
	ActionsAttempted []types.ActionType `json:"actionsAttempted"`
	FinalAction      types.ActionType   `json:"finalAction,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}

// EntityHealer retries the last recorded service invocation for an entity
// with exponential backoff, then walks the domain's alternative-parameter
// candidates.
type EntityHealer struct {
	platform platform.Client
	store    provider.Store
	config   types.HealingConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewEntityHealer creates an EntityHealer.
func NewEntityHealer(client platform.Client, store provider.Store, cfg types.HealingConfig, logger *slog.Logger) *EntityHealer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &EntityHealer{
		platform: client,
		store:    store,
		config:   cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Heal attempts to restore one entity. Without a previously recorded service
// invocation there is nothing to retry, so it fails fast. Expected failure
// modes are encoded in the result; only contract violations return an error.
func (h *EntityHealer) Heal(ctx context.Context, cascadeID, instanceID, entityID string) (*EntityHealResult, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	result := &EntityHealResult{EntityID: entityID}

	call, err := h.store.LastServiceCall(ctx, instanceID, entityID)
	if err != nil {
		return nil, fmt.Errorf("reading service history for %s: %w", entityID, err)
	}
	if call == nil {
		result.Reason = "no recorded service call to retry"
		return result, nil
	}

	result.ActionsAttempted = append(result.ActionsAttempted, types.ActionRetryService)
	if h.retryOriginal(ctx, cascadeID, *call) {
		result.Success = true
		result.FinalAction = types.ActionRetryService
		metrics.EntityHeals.Add(1)
		return result, nil
	}

	candidates := Alternatives(*call)
	if len(candidates) == 0 {
		result.Reason = fmt.Sprintf("retries exhausted, no safe alternatives for %s.%s", call.Domain, call.Service)
		return result, nil
	}

	result.ActionsAttempted = append(result.ActionsAttempted, types.ActionAlternateParams)
	if h.tryAlternatives(ctx, cascadeID, *call, candidates) {
		result.Success = true
		result.FinalAction = types.ActionAlternateParams
		metrics.EntityHeals.Add(1)
		return result, nil
	}

	result.Reason = "all retry and alternative-parameter attempts failed"
	return result, nil
}

// retryOriginal re-issues the exact recorded invocation with exponential
// backoff: delay base*2^attempt before each attempt, starting at attempt 0.
func (h *EntityHealer) retryOriginal(ctx context.Context, cascadeID string, call types.ServiceCall) bool {
	for attempt := 0; attempt < h.config.MaxRetryAttempts; attempt++ {
		delay := h.config.RetryBaseDelay() << attempt
		if err := h.sleep(ctx, delay); err != nil {
			return false
		}

		err := h.invoke(ctx, call.Domain, call.Service, call.EntityID, call.Data)
		h.record(ctx, cascadeID, call.EntityID, types.ActionRetryService, attempt+1, err)
		if err == nil {
			return true
		}
		h.logger.Debug("entity retry failed",
			"entity", call.EntityID, "attempt", attempt+1, "error", err)
	}
	return false
}

// tryAlternatives issues the candidate list in order, stopping at the first
// success.
func (h *EntityHealer) tryAlternatives(ctx context.Context, cascadeID string, call types.ServiceCall, candidates []Candidate) bool {
	for i, cand := range candidates {
		if ctx.Err() != nil {
			return false
		}
		service := call.Service
		if cand.Service != "" {
			service = cand.Service
		}
		err := h.invoke(ctx, call.Domain, service, call.EntityID, cand.Data)
		h.record(ctx, cascadeID, call.EntityID, types.ActionAlternateParams, i+1, err)
		if err == nil {
			return true
		}
		h.logger.Debug("alternative parameters failed",
			"entity", call.EntityID, "service", call.Domain+"."+service, "error", err)
	}
	return false
}

// invoke wraps a platform service call with the per-call timeout. A timeout
// or client error is a failed attempt, never a panic up the strategy.
func (h *EntityHealer) invoke(ctx context.Context, domain, service, entityID string, data map[string]interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(h.config.ServiceCallTimeout)*time.Second)
	defer cancel()
	return h.platform.CallService(callCtx, domain, service, entityID, data)
}

func (h *EntityHealer) record(ctx context.Context, cascadeID, entityID string, action types.ActionType, attempt int, attemptErr error) {
	rec := types.HealingAction{
		CascadeID: cascadeID,
		Level:     types.LevelEntity,
		Action:    action,
		EntityID:  entityID,
		Attempt:   attempt,
		Success:   attemptErr == nil,
		Timestamp: time.Now(),
	}
	if attemptErr != nil {
		rec.ErrorMessage = attemptErr.Error()
	}
	if err := h.store.AppendHealingAction(ctx, rec); err != nil {
		h.logger.Warn("failed to record healing action", "entity", entityID, "error", err)
	}
}

// sleepCtx waits cooperatively, returning early when the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
