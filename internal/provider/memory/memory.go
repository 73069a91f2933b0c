// Package memory implements the Store interface with in-process maps. It is
// the default backend for tests and single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*Store)(nil)

// Store is an in-memory provider.Store implementation.
type Store struct {
	mu sync.Mutex

	desired    map[string]types.DesiredState          // key: instance:automation:entity
	patterns   map[string]types.OutcomePattern        // key: instance:automation:entity
	health     map[string]types.AutomationHealthStatus // key: instance:automation
	breakers   map[string]types.CircuitBreakerRecord  // key: instance:integration
	executions map[string]types.ExecutionRecord       // key: executionID
	calls      map[string][]types.ServiceCall         // key: instance:entity, append order
	actions    map[string][]types.HealingAction       // key: cascadeID
	cascades   []types.CascadeResult
	validation []types.ValidationResult
	events     []types.Event
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		desired:    make(map[string]types.DesiredState),
		patterns:   make(map[string]types.OutcomePattern),
		health:     make(map[string]types.AutomationHealthStatus),
		breakers:   make(map[string]types.CircuitBreakerRecord),
		executions: make(map[string]types.ExecutionRecord),
		calls:      make(map[string][]types.ServiceCall),
		actions:    make(map[string][]types.HealingAction),
	}
}

func key3(a, b, c string) string { return a + ":" + b + ":" + c }
func key2(a, b string) string    { return a + ":" + b }

// PutDesiredState stores a desired state, replacing any prior row for the key.
func (s *Store) PutDesiredState(_ context.Context, ds types.DesiredState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired[key3(ds.InstanceID, ds.AutomationID, ds.EntityID)] = ds
	return nil
}

// GetDesiredState returns the desired state for a key, or nil when absent.
func (s *Store) GetDesiredState(_ context.Context, instanceID, automationID, entityID string) (*types.DesiredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.desired[key3(instanceID, automationID, entityID)]
	if !ok {
		return nil, nil
	}
	return &ds, nil
}

// ListDesiredStates returns every desired state for an automation.
func (s *Store) ListDesiredStates(_ context.Context, instanceID, automationID string) ([]types.DesiredState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.DesiredState
	for _, ds := range s.desired {
		if ds.InstanceID == instanceID && ds.AutomationID == automationID {
			out = append(out, ds)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// GetPattern returns the outcome pattern for a key, or nil when absent.
func (s *Store) GetPattern(_ context.Context, instanceID, automationID, entityID string) (*types.OutcomePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[key3(instanceID, automationID, entityID)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// PutPattern stores a pattern, replacing any prior row for the key.
func (s *Store) PutPattern(_ context.Context, p types.OutcomePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[key3(p.InstanceID, p.AutomationID, p.EntityID)] = p
	return nil
}

// ListPatterns returns every pattern for an automation.
func (s *Store) ListPatterns(_ context.Context, instanceID, automationID string) ([]types.OutcomePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.OutcomePattern
	for _, p := range s.patterns {
		if p.InstanceID == instanceID && p.AutomationID == automationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// GetHealth returns the health status for an automation, or nil when absent.
func (s *Store) GetHealth(_ context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[key2(instanceID, automationID)]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// CompareAndSwapHealth writes a health status if the stored version matches.
func (s *Store) CompareAndSwapHealth(_ context.Context, status types.AutomationHealthStatus, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key2(status.InstanceID, status.AutomationID)
	existing, ok := s.health[k]
	if expectedVersion == 0 {
		if ok {
			return false, nil
		}
	} else if !ok || existing.Version != expectedVersion {
		return false, nil
	}
	s.health[k] = status
	return true, nil
}

// GetBreaker returns the breaker record for an integration, or nil when absent.
func (s *Store) GetBreaker(_ context.Context, instanceID, integrationID string) (*types.CircuitBreakerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.breakers[key2(instanceID, integrationID)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// CompareAndSwapBreaker writes a breaker record if the stored version matches.
func (s *Store) CompareAndSwapBreaker(_ context.Context, record types.CircuitBreakerRecord, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key2(record.InstanceID, record.IntegrationID)
	existing, ok := s.breakers[k]
	if expectedVersion == 0 {
		if ok {
			return false, nil
		}
	} else if !ok || existing.Version != expectedVersion {
		return false, nil
	}
	s.breakers[k] = record
	return true, nil
}

// ListBreakers returns every breaker record for an instance.
func (s *Store) ListBreakers(_ context.Context, instanceID string) ([]types.CircuitBreakerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CircuitBreakerRecord
	for _, r := range s.breakers {
		if r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntegrationID < out[j].IntegrationID })
	return out, nil
}

// PutExecution stores an execution record.
func (s *Store) PutExecution(_ context.Context, rec types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[rec.ExecutionID] = rec
	return nil
}

// GetExecution returns an execution record by id.
func (s *Store) GetExecution(_ context.Context, executionID string) (*types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %q not found", executionID)
	}
	return &rec, nil
}

// ListPendingExecutions returns unvalidated executions executed before the
// cutoff, oldest first.
func (s *Store) ListPendingExecutions(_ context.Context, instanceID string, executedBefore time.Time, limit int) ([]types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ExecutionRecord
	for _, rec := range s.executions {
		if rec.InstanceID == instanceID && !rec.Validated && rec.ExecutedAt.Before(executedBefore) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkExecutionValidated flags an execution as validated.
func (s *Store) MarkExecutionValidated(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %q not found", executionID)
	}
	rec.Validated = true
	s.executions[executionID] = rec
	return nil
}

// PutServiceCall appends a service-call record for an entity.
func (s *Store) PutServiceCall(_ context.Context, call types.ServiceCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key2(call.InstanceID, call.EntityID)
	s.calls[k] = append(s.calls[k], call)
	return nil
}

// LastServiceCall returns the most recent service call for an entity, or nil
// when none was recorded.
func (s *Store) LastServiceCall(_ context.Context, instanceID, entityID string) (*types.ServiceCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := s.calls[key2(instanceID, entityID)]
	if len(calls) == 0 {
		return nil, nil
	}
	last := calls[len(calls)-1]
	return &last, nil
}

// AppendHealingAction appends a per-attempt healing record.
func (s *Store) AppendHealingAction(_ context.Context, action types.HealingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.CascadeID] = append(s.actions[action.CascadeID], action)
	return nil
}

// ListHealingActions returns the healing actions recorded for a cascade.
func (s *Store) ListHealingActions(_ context.Context, cascadeID string) ([]types.HealingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.HealingAction(nil), s.actions[cascadeID]...), nil
}

// PutCascadeResult appends a cascade summary.
func (s *Store) PutCascadeResult(_ context.Context, result types.CascadeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades = append(s.cascades, result)
	return nil
}

// ListCascadeResults returns cascade summaries for an automation, newest first.
func (s *Store) ListCascadeResults(_ context.Context, instanceID, automationID string, limit int) ([]types.CascadeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CascadeResult
	for i := len(s.cascades) - 1; i >= 0; i-- {
		r := s.cascades[i]
		if r.InstanceID == instanceID && (automationID == "" || r.AutomationID == automationID) {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// PutValidation appends a validation result.
func (s *Store) PutValidation(_ context.Context, result types.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validation = append(s.validation, result)
	return nil
}

// ListValidations returns validation results for an execution, oldest first.
func (s *Store) ListValidations(_ context.Context, executionID string) ([]types.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ValidationResult
	for _, v := range s.validation {
		if v.ExecutionID == executionID {
			out = append(out, v)
		}
	}
	return out, nil
}

// AppendEvent appends an audit event.
func (s *Store) AppendEvent(_ context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListEvents returns the newest events for an instance.
func (s *Store) ListEvents(_ context.Context, instanceID string, limit int) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if instanceID == "" || e.InstanceID == instanceID {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Start is a no-op for the memory store.
func (s *Store) Start(_ context.Context) error { return nil }

// Stop is a no-op for the memory store.
func (s *Store) Stop(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }
