package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*Store)(nil)

func (s *Store) desiredKey(instanceID, automationID, entityID string) string {
	return s.prefix + "desired:" + instanceID + ":" + automationID + ":" + entityID
}

func (s *Store) desiredIndexKey(instanceID, automationID string) string {
	return s.prefix + "desiredidx:" + instanceID + ":" + automationID
}

func (s *Store) patternKey(instanceID, automationID, entityID string) string {
	return s.prefix + "pattern:" + instanceID + ":" + automationID + ":" + entityID
}

func (s *Store) patternIndexKey(instanceID, automationID string) string {
	return s.prefix + "patternidx:" + instanceID + ":" + automationID
}

func (s *Store) healthKey(instanceID, automationID string) string {
	return s.prefix + "health:" + instanceID + ":" + automationID
}

func (s *Store) breakerKey(instanceID, integrationID string) string {
	return s.prefix + "breaker:" + instanceID + ":" + integrationID
}

func (s *Store) breakerIndexKey(instanceID string) string {
	return s.prefix + "breakers:" + instanceID
}

func (s *Store) executionKey(executionID string) string {
	return s.prefix + "execution:" + executionID
}

func (s *Store) pendingKey(instanceID string) string {
	return s.prefix + "pending:" + instanceID
}

func (s *Store) callKey(instanceID, entityID string) string {
	return s.prefix + "calls:" + instanceID + ":" + entityID
}

func (s *Store) actionsKey(cascadeID string) string {
	return s.prefix + "actions:" + cascadeID
}

func (s *Store) cascadesKey(instanceID, automationID string) string {
	return s.prefix + "cascades:" + instanceID + ":" + automationID
}

func (s *Store) validationsKey(executionID string) string {
	return s.prefix + "validations:" + executionID
}

func (s *Store) eventsKey(instanceID string) string {
	return s.prefix + "events:" + instanceID
}

// PutDesiredState stores a desired state, replacing any prior row for the key.
func (s *Store) PutDesiredState(ctx context.Context, ds types.DesiredState) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("marshaling desired state: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.desiredKey(ds.InstanceID, ds.AutomationID, ds.EntityID), data, 0)
	pipe.SAdd(ctx, s.desiredIndexKey(ds.InstanceID, ds.AutomationID), ds.EntityID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetDesiredState returns the desired state for a key, or nil when absent.
func (s *Store) GetDesiredState(ctx context.Context, instanceID, automationID, entityID string) (*types.DesiredState, error) {
	var ds types.DesiredState
	ok, err := s.getJSON(ctx, s.desiredKey(instanceID, automationID, entityID), &ds)
	if err != nil || !ok {
		return nil, err
	}
	return &ds, nil
}

// ListDesiredStates returns every desired state for an automation.
func (s *Store) ListDesiredStates(ctx context.Context, instanceID, automationID string) ([]types.DesiredState, error) {
	entityIDs, err := s.client.SMembers(ctx, s.desiredIndexKey(instanceID, automationID)).Result()
	if err != nil {
		return nil, err
	}
	var out []types.DesiredState
	for _, entityID := range entityIDs {
		ds, err := s.GetDesiredState(ctx, instanceID, automationID, entityID)
		if err != nil {
			return nil, err
		}
		if ds == nil {
			s.logger.Warn("skipping dangling desired-state index entry", "entity", entityID)
			continue
		}
		out = append(out, *ds)
	}
	return out, nil
}

// GetPattern returns the outcome pattern for a key, or nil when absent.
func (s *Store) GetPattern(ctx context.Context, instanceID, automationID, entityID string) (*types.OutcomePattern, error) {
	var p types.OutcomePattern
	ok, err := s.getJSON(ctx, s.patternKey(instanceID, automationID, entityID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// PutPattern stores a pattern, replacing any prior row for the key.
func (s *Store) PutPattern(ctx context.Context, p types.OutcomePattern) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pattern: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.patternKey(p.InstanceID, p.AutomationID, p.EntityID), data, 0)
	pipe.SAdd(ctx, s.patternIndexKey(p.InstanceID, p.AutomationID), p.EntityID)
	_, err = pipe.Exec(ctx)
	return err
}

// ListPatterns returns every pattern for an automation.
func (s *Store) ListPatterns(ctx context.Context, instanceID, automationID string) ([]types.OutcomePattern, error) {
	entityIDs, err := s.client.SMembers(ctx, s.patternIndexKey(instanceID, automationID)).Result()
	if err != nil {
		return nil, err
	}
	var out []types.OutcomePattern
	for _, entityID := range entityIDs {
		p, err := s.GetPattern(ctx, instanceID, automationID, entityID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// GetHealth returns the health status for an automation, or nil when absent.
func (s *Store) GetHealth(ctx context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error) {
	var h types.AutomationHealthStatus
	ok, err := s.getVersioned(ctx, s.healthKey(instanceID, automationID), &h)
	if err != nil || !ok {
		return nil, err
	}
	return &h, nil
}

// CompareAndSwapHealth writes a health status if the stored version matches.
func (s *Store) CompareAndSwapHealth(ctx context.Context, status types.AutomationHealthStatus, expectedVersion int) (bool, error) {
	return s.compareAndSwap(ctx, s.healthKey(status.InstanceID, status.AutomationID), status, expectedVersion, status.Version)
}

// GetBreaker returns the breaker record for an integration, or nil when absent.
func (s *Store) GetBreaker(ctx context.Context, instanceID, integrationID string) (*types.CircuitBreakerRecord, error) {
	var r types.CircuitBreakerRecord
	ok, err := s.getVersioned(ctx, s.breakerKey(instanceID, integrationID), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// CompareAndSwapBreaker writes a breaker record if the stored version matches.
func (s *Store) CompareAndSwapBreaker(ctx context.Context, record types.CircuitBreakerRecord, expectedVersion int) (bool, error) {
	ok, err := s.compareAndSwap(ctx, s.breakerKey(record.InstanceID, record.IntegrationID), record, expectedVersion, record.Version)
	if err != nil || !ok {
		return ok, err
	}
	// Index write is best-effort; a missing index entry only hides the
	// breaker from listings, never from gating.
	if err := s.client.SAdd(ctx, s.breakerIndexKey(record.InstanceID), record.IntegrationID).Err(); err != nil {
		s.logger.Warn("breaker index update failed", "integration", record.IntegrationID, "error", err)
	}
	return true, nil
}

// ListBreakers returns every breaker record for an instance.
func (s *Store) ListBreakers(ctx context.Context, instanceID string) ([]types.CircuitBreakerRecord, error) {
	integrationIDs, err := s.client.SMembers(ctx, s.breakerIndexKey(instanceID)).Result()
	if err != nil {
		return nil, err
	}
	var out []types.CircuitBreakerRecord
	for _, id := range integrationIDs {
		r, err := s.GetBreaker(ctx, instanceID, id)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// PutExecution stores an execution record and indexes it for the pending
// validation sweep.
func (s *Store) PutExecution(ctx context.Context, rec types.ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling execution: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.executionKey(rec.ExecutionID), data, 0)
	if rec.Validated {
		pipe.ZRem(ctx, s.pendingKey(rec.InstanceID), rec.ExecutionID)
	} else {
		pipe.ZAdd(ctx, s.pendingKey(rec.InstanceID), goredis.Z{
			Score:  float64(rec.ExecutedAt.UnixMilli()),
			Member: rec.ExecutionID,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetExecution returns an execution record by id.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	ok, err := s.getJSON(ctx, s.executionKey(executionID), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("execution %q not found", executionID)
	}
	return &rec, nil
}

// ListPendingExecutions returns unvalidated executions executed before the
// cutoff, oldest first.
func (s *Store) ListPendingExecutions(ctx context.Context, instanceID string, executedBefore time.Time, limit int) ([]types.ExecutionRecord, error) {
	opt := &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", executedBefore.UnixMilli()),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(instanceID), opt).Result()
	if err != nil {
		return nil, err
	}
	var out []types.ExecutionRecord
	for _, id := range ids {
		rec, err := s.GetExecution(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable pending execution", "execution", id, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// MarkExecutionValidated flags an execution as validated and drops it from
// the pending index.
func (s *Store) MarkExecutionValidated(ctx context.Context, executionID string) error {
	rec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	rec.Validated = true
	return s.PutExecution(ctx, *rec)
}

// PutServiceCall appends a service-call record for an entity.
func (s *Store) PutServiceCall(ctx context.Context, call types.ServiceCall) error {
	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshaling service call: %w", err)
	}
	key := s.callKey(call.InstanceID, call.EntityID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.actionMax, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// LastServiceCall returns the most recent service call for an entity, or nil
// when none was recorded.
func (s *Store) LastServiceCall(ctx context.Context, instanceID, entityID string) (*types.ServiceCall, error) {
	data, err := s.client.LIndex(ctx, s.callKey(instanceID, entityID), -1).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var call types.ServiceCall
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// AppendHealingAction appends a per-attempt healing record.
func (s *Store) AppendHealingAction(ctx context.Context, action types.HealingAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshaling healing action: %w", err)
	}
	key := s.actionsKey(action.CascadeID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.actionMax, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// ListHealingActions returns the healing actions recorded for a cascade.
func (s *Store) ListHealingActions(ctx context.Context, cascadeID string) ([]types.HealingAction, error) {
	items, err := s.client.LRange(ctx, s.actionsKey(cascadeID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []types.HealingAction
	for _, item := range items {
		var a types.HealingAction
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			s.logger.Warn("skipping corrupt healing action", "cascade", cascadeID, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// PutCascadeResult appends a cascade summary.
func (s *Store) PutCascadeResult(ctx context.Context, result types.CascadeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling cascade result: %w", err)
	}
	key := s.cascadesKey(result.InstanceID, result.AutomationID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.resultMax, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// ListCascadeResults returns cascade summaries for an automation, newest first.
func (s *Store) ListCascadeResults(ctx context.Context, instanceID, automationID string, limit int) ([]types.CascadeResult, error) {
	items, err := s.client.LRange(ctx, s.cascadesKey(instanceID, automationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []types.CascadeResult
	for i := len(items) - 1; i >= 0; i-- {
		var r types.CascadeResult
		if err := json.Unmarshal([]byte(items[i]), &r); err != nil {
			s.logger.Warn("skipping corrupt cascade result", "automation", automationID, "error", err)
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PutValidation appends a validation result.
func (s *Store) PutValidation(ctx context.Context, result types.ValidationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling validation: %w", err)
	}
	return s.client.RPush(ctx, s.validationsKey(result.ExecutionID), data).Err()
}

// ListValidations returns validation results for an execution, oldest first.
func (s *Store) ListValidations(ctx context.Context, executionID string) ([]types.ValidationResult, error) {
	items, err := s.client.LRange(ctx, s.validationsKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []types.ValidationResult
	for _, item := range items {
		var v types.ValidationResult
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// AppendEvent appends an audit event to the instance stream.
func (s *Store) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	key := s.eventsKey(event.InstanceID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.eventMax, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// ListEvents returns the newest events for an instance.
func (s *Store) ListEvents(ctx context.Context, instanceID string, limit int) ([]types.Event, error) {
	items, err := s.client.LRange(ctx, s.eventsKey(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []types.Event
	for i := len(items) - 1; i >= 0; i-- {
		var e types.Event
		if err := json.Unmarshal([]byte(items[i]), &e); err != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// getVersioned reads a CAS-managed hash record.
func (s *Store) getVersioned(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := s.client.HGet(ctx, key, "data").Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// compareAndSwap runs the Lua CAS script for a versioned record.
func (s *Store) compareAndSwap(ctx context.Context, key string, record interface{}, expectedVersion, newVersion int) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshaling versioned record: %w", err)
	}
	res, err := s.cas.Run(ctx, s.client, []string{key},
		fmt.Sprintf("%d", expectedVersion), string(data), fmt.Sprintf("%d", newVersion)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
