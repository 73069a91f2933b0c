// Package validator checks automation executions against their desired
// entity states, maintains automation health, learns outcome patterns, and
// queues healing cascades for failed outcomes.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/halcyon-systems/halcyon/internal/health"
	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/internal/tasks"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// CascadeRunner starts a healing cascade. Satisfied by the cascade
// orchestrator.
type CascadeRunner interface {
	Heal(ctx context.Context, hctx types.HealingContext) (*types.CascadeResult, error)
}

// Validator validates execution outcomes against desired states.
type Validator struct {
	store    provider.Store
	platform platform.Client
	tracker  *health.Tracker
	cascades CascadeRunner
	tasks    *tasks.Registry
	config   types.HealingConfig
	logger   *slog.Logger
	now      func() time.Time
	entropy  *ulid.MonotonicEntropy
}

// New creates a Validator. cascades and registry may be nil, in which case
// failed validations are recorded but never healed.
func New(store provider.Store, client platform.Client, tracker *health.Tracker, cascades CascadeRunner, registry *tasks.Registry, cfg types.HealingConfig, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()
	return &Validator{
		store:    store,
		platform: client,
		tracker:  tracker,
		cascades: cascades,
		tasks:    registry,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Validate checks one execution against its automation's desired states.
// window overrides the configured validation window when positive.
//
// Without any desired states the outcome is non-achieved and no cascade is
// queued: there is nothing to heal toward. Health tracking is skipped in
// that case so automations are not penalized before their first learned
// state.
func (v *Validator) Validate(ctx context.Context, executionID string, window time.Duration) (*types.ValidationResult, error) {
	exec, err := v.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("reading execution %s: %w", executionID, err)
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s not found", executionID)
	}
	if window <= 0 {
		window = time.Duration(v.config.ValidationWindowSeconds) * time.Second
	}

	result := &types.ValidationResult{
		ValidationID: ulid.MustNew(ulid.Timestamp(v.now()), v.entropy).String(),
		ExecutionID:  executionID,
		InstanceID:   exec.InstanceID,
		AutomationID: exec.AutomationID,
		ValidatedAt:  v.now(),
	}
	metrics.ValidationsTotal.Add(1)

	desired, err := v.store.ListDesiredStates(ctx, exec.InstanceID, exec.AutomationID)
	if err != nil {
		return nil, fmt.Errorf("reading desired states for %s: %w", exec.AutomationID, err)
	}
	if len(desired) == 0 {
		v.logger.Info("no desired states to validate against",
			"execution", executionID, "automation", exec.AutomationID)
		metrics.ValidationsFailed.Add(1)
		v.finish(ctx, exec, result)
		return result, nil
	}

	achievedSamples := make(map[string]platform.StateSample, len(desired))
	result.OverallSuccess = true
	for _, ds := range desired {
		ev, sample := v.validateEntity(ctx, exec, ds, window)
		result.Entities = append(result.Entities, ev)
		if ev.Achieved {
			achievedSamples[ds.EntityID] = sample
		} else {
			result.OverallSuccess = false
		}
	}

	if v.tracker != nil {
		if _, err := v.tracker.Record(ctx, exec.InstanceID, exec.AutomationID, result.OverallSuccess); err != nil {
			v.logger.Error("health tracking failed",
				"automation", exec.AutomationID, "error", err)
		}
	}

	if result.OverallSuccess {
		for _, ds := range desired {
			v.learnPattern(ctx, ds, achievedSamples[ds.EntityID])
		}
	} else {
		metrics.ValidationsFailed.Add(1)
		result.CascadeQueued = v.queueCascade(exec, result)
	}

	v.finish(ctx, exec, result)
	v.logger.Info("validation completed",
		"execution", executionID, "automation", exec.AutomationID,
		"success", result.OverallSuccess, "entities", len(result.Entities),
		"cascadeQueued", result.CascadeQueued)
	return result, nil
}

// validateEntity checks one desired state against the entity's history in
// [executedAt, executedAt+window]. The last sample in the window decides
// achievement, so a transient match that reverts does not count; the first
// matching sample only fixes the time to achievement. No history in the
// window means not achieved.
func (v *Validator) validateEntity(ctx context.Context, exec *types.ExecutionRecord, ds types.DesiredState, window time.Duration) (types.EntityValidation, platform.StateSample) {
	ev := types.EntityValidation{
		EntityID:     ds.EntityID,
		DesiredState: ds.State,
		Confidence:   ds.Confidence,
	}

	end := exec.ExecutedAt.Add(window)
	samples, err := v.platform.GetHistory(ctx, ds.EntityID, exec.ExecutedAt, end)
	if err != nil {
		ev.Reason = fmt.Sprintf("history unavailable: %v", err)
		return ev, platform.StateSample{}
	}
	if len(samples) == 0 {
		ev.Reason = "no state observations in validation window"
		return ev, platform.StateSample{}
	}

	last := samples[len(samples)-1]
	ev.ActualState = last.State
	if !matches(ds, last) {
		ev.Reason = fmt.Sprintf("desired %q, observed %q", ds.State, last.State)
		return ev, platform.StateSample{}
	}

	ev.Achieved = true
	for _, sample := range samples {
		if matches(ds, sample) {
			if elapsed := sample.ChangedAt.Sub(exec.ExecutedAt); elapsed > 0 {
				ev.TimeToAchievement = elapsed.Milliseconds()
			}
			break
		}
	}
	return ev, last
}

// queueCascade schedules healing for the failed entities in the background.
// Cascade failures never propagate into the validation result; they are
// logged and recorded by the orchestrator itself.
func (v *Validator) queueCascade(exec *types.ExecutionRecord, result *types.ValidationResult) bool {
	if v.cascades == nil || v.tasks == nil {
		return false
	}
	var failed []string
	for _, ev := range result.Entities {
		if !ev.Achieved {
			failed = append(failed, ev.EntityID)
		}
	}
	if len(failed) == 0 {
		return false
	}

	hctx := types.HealingContext{
		InstanceID:     exec.InstanceID,
		AutomationID:   exec.AutomationID,
		ExecutionID:    exec.ExecutionID,
		Trigger:        types.OutcomeFailure,
		FailedEntities: failed,
	}
	return v.tasks.Go("cascade/"+exec.ExecutionID, func(ctx context.Context) {
		if _, err := v.cascades.Heal(ctx, hctx); err != nil {
			v.logger.Error("cascade failed",
				"execution", exec.ExecutionID, "automation", exec.AutomationID, "error", err)
		}
	})
}

// finish persists the validation, marks the execution validated, and emits
// the audit event.
func (v *Validator) finish(ctx context.Context, exec *types.ExecutionRecord, result *types.ValidationResult) {
	if err := v.store.PutValidation(ctx, *result); err != nil {
		v.logger.Error("failed to persist validation",
			"execution", exec.ExecutionID, "error", err)
	}
	if err := v.store.MarkExecutionValidated(ctx, exec.ExecutionID); err != nil {
		v.logger.Error("failed to mark execution validated",
			"execution", exec.ExecutionID, "error", err)
	}
	v.event(ctx, types.EventValidationCompleted, exec.InstanceID, exec.AutomationID, map[string]interface{}{
		"executionId": exec.ExecutionID,
		"success":     result.OverallSuccess,
	})
}

func (v *Validator) event(ctx context.Context, kind types.EventKind, instanceID, automationID string, details map[string]interface{}) {
	ev := types.Event{
		Kind:         kind,
		InstanceID:   instanceID,
		AutomationID: automationID,
		Details:      details,
		Timestamp:    v.now(),
	}
	if err := v.store.AppendEvent(ctx, ev); err != nil {
		v.logger.Warn("failed to append event", "kind", kind, "error", err)
	}
}
