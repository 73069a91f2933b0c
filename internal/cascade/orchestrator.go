package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/halcyon-systems/halcyon/internal/healer"
	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// EntityHealer heals one entity at a time.
type EntityHealer interface {
	Heal(ctx context.Context, cascadeID, instanceID, entityID string) (*healer.EntityHealResult, error)
}

// DeviceHealer heals the devices behind a set of entities.
type DeviceHealer interface {
	Heal(ctx context.Context, cascadeID string, entityIDs []string) (*types.DeviceHealResult, error)
}

// IntegrationHealer reloads the integrations behind a set of entities.
type IntegrationHealer interface {
	Heal(ctx context.Context, cascadeID, instanceID string, entityIDs []string) (*healer.IntegrationHealResult, error)
}

// Alerter receives out-of-band notifications. Satisfied by the alert
// dispatcher.
type Alerter interface {
	Notify(ctx context.Context, alert types.Alert)
}

// Orchestrator runs healing cascades: it picks a starting level, walks the
// escalation ladder carrying only still-failed entities upward, and persists
// the aggregate result.
type Orchestrator struct {
	store       provider.Store
	entity      EntityHealer
	device      DeviceHealer
	integration IntegrationHealer
	alerter     Alerter
	config      types.HealingConfig
	logger      *slog.Logger
	now         func() time.Time
	entropy     *ulid.MonotonicEntropy
}

// New creates an Orchestrator. alerter may be nil.
func New(store provider.Store, entity EntityHealer, device DeviceHealer, integration IntegrationHealer, alerter Alerter, cfg types.HealingConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &Orchestrator{
		store:       store,
		entity:      entity,
		device:      device,
		integration: integration,
		alerter:     alerter,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// healedOutcome records which level and strategy healed one entity, kept for
// pattern learning.
type healedOutcome struct {
	level    types.HealingLevel
	strategy string
}

// Heal runs one cascade for the given context and returns the persisted
// result. Escalation continues while any entity remains unhealed; the
// cascade succeeds when at least one failed entity ends healed. It runs
// under its own timeout budget; a timeout produces a failed result, not an
// error.
func (o *Orchestrator) Heal(ctx context.Context, hctx types.HealingContext) (*types.CascadeResult, error) {
	if len(hctx.FailedEntities) == 0 {
		return nil, errors.New("healing context has no failed entities")
	}

	cascadeID := ulid.MustNew(ulid.Timestamp(o.now()), o.entropy).String()
	started := o.now()

	budget := time.Duration(o.config.CascadeTimeoutSeconds) * time.Second
	if hctx.TimeoutSeconds > 0 {
		budget = time.Duration(hctx.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	strategy, startLevel, hasPattern := o.route(runCtx, hctx)
	result := &types.CascadeResult{
		CascadeID:       cascadeID,
		InstanceID:      hctx.InstanceID,
		AutomationID:    hctx.AutomationID,
		ExecutionID:     hctx.ExecutionID,
		RoutingStrategy: strategy,
		EntityResults:   make(map[string]bool, len(hctx.FailedEntities)),
		StartedAt:       started,
	}
	for _, id := range hctx.FailedEntities {
		result.EntityResults[id] = false
	}

	metrics.CascadesTotal.Add(1)
	o.logger.Info("cascade started",
		"cascade", cascadeID, "automation", hctx.AutomationID,
		"trigger", hctx.Trigger, "routing", strategy,
		"startLevel", startLevel, "entities", len(hctx.FailedEntities))
	o.event(ctx, types.EventCascadeStarted, hctx, cascadeID, map[string]interface{}{
		"routing":    string(strategy),
		"startLevel": string(startLevel),
		"trigger":    string(hctx.Trigger),
		"entities":   hctx.FailedEntities,
	})

	healedBy := make(map[string]healedOutcome)
	state := LevelState(startLevel)
	for !IsTerminal(state) {
		level, _ := state.Level()
		remaining := unhealed(hctx.FailedEntities, result.EntityResults)
		if len(remaining) == 0 {
			state = StateSucceeded
			continue
		}

		if err := runCtx.Err(); err != nil {
			o.finishTimeout(ctx, hctx, result, level)
			return result, nil
		}

		result.LevelsAttempted = append(result.LevelsAttempted, level)
		o.event(ctx, types.EventLevelAttempted, hctx, cascadeID, map[string]interface{}{
			"level": string(level), "entities": remaining,
		})

		healed, strategyName, err := o.runLevel(runCtx, hctx, cascadeID, level, remaining, result.EntityResults, healedBy)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil {
				o.finishTimeout(ctx, hctx, result, level)
				return result, nil
			}
			o.logger.Error("cascade level failed",
				"cascade", cascadeID, "level", level, "error", err)
		}

		if healed > 0 && result.SuccessfulLevel == "" {
			result.SuccessfulLevel = level
			result.SuccessfulStrategy = strategyName
		}
		if len(unhealed(hctx.FailedEntities, result.EntityResults)) == 0 {
			state = StateSucceeded
		} else {
			state = Escalate(state)
		}
	}

	result.CompletedAt = o.now()
	result.DurationSeconds = result.CompletedAt.Sub(started).Seconds()
	result.Success = len(healedBy) > 0

	if result.Success {
		metrics.CascadesSucceeded.Add(1)
		o.recordHealingOutcome(ctx, hctx, healedBy)
	} else if result.ErrorMessage == "" {
		result.ErrorMessage = "all healing levels exhausted"
	}

	if !result.Success && !hasPattern {
		result.PlanRequested = true
		metrics.PlanGenerationFlagged.Add(1)
		o.event(ctx, types.EventPlanGenerationFlagged, hctx, cascadeID, nil)
		o.notify(ctx, types.Alert{
			Level:        types.AlertLevelWarning,
			InstanceID:   hctx.InstanceID,
			AutomationID: hctx.AutomationID,
			Message:      fmt.Sprintf("healing exhausted for %s with no learned pattern; operator plan needed", hctx.AutomationID),
			Details:      map[string]interface{}{"cascadeId": cascadeID, "entities": unhealed(hctx.FailedEntities, result.EntityResults)},
			Timestamp:    o.now(),
		})
	}

	o.persist(ctx, hctx, result)
	o.logger.Info("cascade completed",
		"cascade", cascadeID, "success", result.Success,
		"level", result.SuccessfulLevel, "duration", result.DurationSeconds)
	return result, nil
}

// route picks the starting level. When strictly more than half of the failed
// entities carry the same learned successful level, the cascade jumps
// straight to it; otherwise it walks the ladder from the bottom.
func (o *Orchestrator) route(ctx context.Context, hctx types.HealingContext) (types.RoutingStrategy, types.HealingLevel, bool) {
	patterns, err := o.store.ListPatterns(ctx, hctx.InstanceID, hctx.AutomationID)
	if err != nil {
		o.logger.Warn("pattern lookup failed, routing sequentially",
			"automation", hctx.AutomationID, "error", err)
		return types.RoutingSequential, types.LevelEntity, false
	}

	failed := make(map[string]bool, len(hctx.FailedEntities))
	for _, id := range hctx.FailedEntities {
		failed[id] = true
	}

	counts := make(map[types.HealingLevel]int)
	hasPattern := false
	for _, p := range patterns {
		if !failed[p.EntityID] {
			continue
		}
		hasPattern = true
		if p.SuccessfulLevel != "" {
			counts[p.SuccessfulLevel]++
		}
	}

	var best types.HealingLevel
	bestCount := 0
	for level, n := range counts {
		if n > bestCount || (n == bestCount && level.Rank() < best.Rank()) {
			best, bestCount = level, n
		}
	}
	// Majority is over all failed entities, not just those with a learned
	// level; anything short of it routes sequentially.
	if bestCount*2 > len(hctx.FailedEntities) {
		return types.RoutingIntelligent, best, hasPattern
	}
	return types.RoutingSequential, types.LevelEntity, hasPattern
}

// runLevel executes one level against the remaining entities, updating
// entityResults and the per-entity healed outcomes in place. Returns how
// many of the remaining entities this level healed and the strategy name
// recorded on the cascade summary.
func (o *Orchestrator) runLevel(ctx context.Context, hctx types.HealingContext, cascadeID string, level types.HealingLevel, remaining []string, entityResults map[string]bool, healedBy map[string]healedOutcome) (int, string, error) {
	switch level {
	case types.LevelEntity:
		healed := 0
		var strategy string
		for _, entityID := range remaining {
			res, err := o.entity.Heal(ctx, cascadeID, hctx.InstanceID, entityID)
			if err != nil {
				return healed, strategy, err
			}
			if res.Success {
				entityResults[entityID] = true
				healedBy[entityID] = healedOutcome{level: level, strategy: string(res.FinalAction)}
				strategy = string(res.FinalAction)
				healed++
			}
		}
		return healed, strategy, nil

	case types.LevelDevice:
		res, err := o.device.Heal(ctx, cascadeID, remaining)
		if err != nil {
			return 0, "", err
		}
		healed := 0
		for id, ok := range res.EntityResults {
			if ok {
				entityResults[id] = true
				healedBy[id] = healedOutcome{level: level, strategy: string(res.FinalAction)}
				healed++
			}
		}
		return healed, string(res.FinalAction), nil

	case types.LevelIntegration:
		res, err := o.integration.Heal(ctx, cascadeID, hctx.InstanceID, remaining)
		if err != nil {
			return 0, "", err
		}
		healed := 0
		for id, ok := range res.EntityResults {
			if ok {
				entityResults[id] = true
				healedBy[id] = healedOutcome{level: level, strategy: string(types.ActionIntegrationReload)}
				healed++
			}
		}
		return healed, string(types.ActionIntegrationReload), nil
	}
	return 0, "", fmt.Errorf("unknown healing level %q", level)
}

// recordHealingOutcome stamps each healed entity's own level and strategy
// onto its learned pattern so future cascades can route directly.
func (o *Orchestrator) recordHealingOutcome(ctx context.Context, hctx types.HealingContext, healedBy map[string]healedOutcome) {
	for entityID, outcome := range healedBy {
		pattern, err := o.store.GetPattern(ctx, hctx.InstanceID, hctx.AutomationID, entityID)
		if err != nil {
			o.logger.Warn("pattern read failed", "entity", entityID, "error", err)
			continue
		}
		if pattern == nil {
			pattern = &types.OutcomePattern{
				InstanceID:   hctx.InstanceID,
				AutomationID: hctx.AutomationID,
				EntityID:     entityID,
			}
		}
		pattern.SuccessfulLevel = outcome.level
		pattern.SuccessfulStrategy = outcome.strategy
		pattern.HealingSuccesses++
		pattern.LastObserved = o.now()
		if err := o.store.PutPattern(ctx, *pattern); err != nil {
			o.logger.Warn("pattern write failed", "entity", entityID, "error", err)
		}
	}
}

func (o *Orchestrator) finishTimeout(ctx context.Context, hctx types.HealingContext, result *types.CascadeResult, level types.HealingLevel) {
	result.CompletedAt = o.now()
	result.DurationSeconds = result.CompletedAt.Sub(result.StartedAt).Seconds()
	result.ErrorMessage = fmt.Sprintf("cascade timed out at level %s", level)
	metrics.CascadesTimedOut.Add(1)
	o.logger.Warn("cascade timed out",
		"cascade", result.CascadeID, "level", level, "duration", result.DurationSeconds)
	o.event(ctx, types.EventCascadeTimeout, hctx, result.CascadeID, map[string]interface{}{
		"level": string(level),
	})
	o.persist(ctx, hctx, result)
}

// persist writes the result and completion event detached from the cascade
// deadline so a timed-out cascade still leaves an audit trail.
func (o *Orchestrator) persist(ctx context.Context, hctx types.HealingContext, result *types.CascadeResult) {
	ctx = context.WithoutCancel(ctx)
	if err := o.store.PutCascadeResult(ctx, *result); err != nil {
		o.logger.Error("failed to persist cascade result",
			"cascade", result.CascadeID, "error", err)
	}
	o.event(ctx, types.EventCascadeCompleted, hctx, result.CascadeID, map[string]interface{}{
		"success": result.Success,
		"level":   string(result.SuccessfulLevel),
	})
}

func (o *Orchestrator) event(ctx context.Context, kind types.EventKind, hctx types.HealingContext, cascadeID string, details map[string]interface{}) {
	ev := types.Event{
		Kind:         kind,
		InstanceID:   hctx.InstanceID,
		AutomationID: hctx.AutomationID,
		CascadeID:    cascadeID,
		Details:      details,
		Timestamp:    o.now(),
	}
	if err := o.store.AppendEvent(ctx, ev); err != nil {
		o.logger.Warn("failed to append event", "kind", kind, "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, alert types.Alert) {
	if o.alerter == nil {
		return
	}
	o.alerter.Notify(ctx, alert)
}

// unhealed filters the ordered entity list down to those still failed,
// preserving order so escalation attempts are deterministic.
func unhealed(ordered []string, entityResults map[string]bool) []string {
	var out []string
	for _, id := range ordered {
		if !entityResults[id] {
			out = append(out, id)
		}
	}
	return out
}
