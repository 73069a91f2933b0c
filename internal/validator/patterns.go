package validator

import (
	"context"

	"github.com/halcyon-systems/halcyon/internal/metrics"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// patternBaseConfidence and patternConfidenceStep define how observation
// counts translate into desired-state confidence: 0.5 plus 0.1 per
// occurrence, capped at 1.0.
const (
	patternBaseConfidence  = 0.5
	patternConfidenceStep  = 0.1
	patternConfidenceLimit = 1.0
)

// patternConfidence derives a confidence score from an occurrence count.
func patternConfidence(occurrences int) float64 {
	c := patternBaseConfidence + float64(occurrences)*patternConfidenceStep
	if c > patternConfidenceLimit {
		return patternConfidenceLimit
	}
	return c
}

// learnPattern upserts the observed-outcome pattern for one achieved entity
// and promotes the desired state's confidence as the observation count
// grows.
func (v *Validator) learnPattern(ctx context.Context, desired types.DesiredState, sample platform.StateSample) {
	pattern, err := v.store.GetPattern(ctx, desired.InstanceID, desired.AutomationID, desired.EntityID)
	if err != nil {
		v.logger.Warn("pattern read failed", "entity", desired.EntityID, "error", err)
		return
	}
	if pattern == nil {
		pattern = &types.OutcomePattern{
			InstanceID:   desired.InstanceID,
			AutomationID: desired.AutomationID,
			EntityID:     desired.EntityID,
		}
		metrics.PatternsLearned.Add(1)
		v.event(ctx, types.EventPatternLearned, desired.InstanceID, desired.AutomationID, map[string]interface{}{
			"entityId": desired.EntityID,
			"state":    sample.State,
		})
	}
	pattern.ObservedState = sample.State
	pattern.ObservedAttributes = sample.Attributes
	pattern.OccurrenceCount++
	pattern.LastObserved = v.now()
	if err := v.store.PutPattern(ctx, *pattern); err != nil {
		v.logger.Warn("pattern write failed", "entity", desired.EntityID, "error", err)
		return
	}

	confidence := patternConfidence(pattern.OccurrenceCount)
	if confidence != desired.Confidence {
		desired.Confidence = confidence
		desired.UpdatedAt = v.now()
		if err := v.store.PutDesiredState(ctx, desired); err != nil {
			v.logger.Warn("desired state update failed", "entity", desired.EntityID, "error", err)
		}
	}
}
