// Package provider defines the storage backend interface for Halcyon.
package provider

import (
	"context"
	"time"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

// Store is the storage backend interface. The memory provider backs tests
// and development; Redis and DynamoDB back production deployments.
//
// Versioned records (automation health, circuit breakers) use optimistic
// concurrency: CompareAndSwap* writes succeed only when the stored version
// matches expectedVersion. expectedVersion 0 means "create" and fails when a
// record already exists, so racing creators detect the conflict and re-read.
type Store interface {
	// Desired states — per (instance, automation, entity), unique.
	PutDesiredState(ctx context.Context, ds types.DesiredState) error
	GetDesiredState(ctx context.Context, instanceID, automationID, entityID string) (*types.DesiredState, error)
	ListDesiredStates(ctx context.Context, instanceID, automationID string) ([]types.DesiredState, error)

	// Outcome patterns — per (instance, automation, entity), unique.
	// PutPattern overwrites; callers increment occurrence counts, never
	// create duplicate rows for the same key.
	GetPattern(ctx context.Context, instanceID, automationID, entityID string) (*types.OutcomePattern, error)
	PutPattern(ctx context.Context, p types.OutcomePattern) error
	ListPatterns(ctx context.Context, instanceID, automationID string) ([]types.OutcomePattern, error)

	// Automation health — versioned read-modify-write.
	GetHealth(ctx context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error)
	CompareAndSwapHealth(ctx context.Context, status types.AutomationHealthStatus, expectedVersion int) (bool, error)

	// Circuit breakers — versioned read-modify-write, keyed by integration.
	GetBreaker(ctx context.Context, instanceID, integrationID string) (*types.CircuitBreakerRecord, error)
	CompareAndSwapBreaker(ctx context.Context, record types.CircuitBreakerRecord, expectedVersion int) (bool, error)
	ListBreakers(ctx context.Context, instanceID string) ([]types.CircuitBreakerRecord, error)

	// Executions awaiting outcome validation.
	PutExecution(ctx context.Context, rec types.ExecutionRecord) error
	GetExecution(ctx context.Context, executionID string) (*types.ExecutionRecord, error)
	ListPendingExecutions(ctx context.Context, instanceID string, executedBefore time.Time, limit int) ([]types.ExecutionRecord, error)
	MarkExecutionValidated(ctx context.Context, executionID string) error

	// Service-call history, read back by the entity healer.
	PutServiceCall(ctx context.Context, call types.ServiceCall) error
	LastServiceCall(ctx context.Context, instanceID, entityID string) (*types.ServiceCall, error)

	// Append-only healing records.
	AppendHealingAction(ctx context.Context, action types.HealingAction) error
	ListHealingActions(ctx context.Context, cascadeID string) ([]types.HealingAction, error)
	PutCascadeResult(ctx context.Context, result types.CascadeResult) error
	ListCascadeResults(ctx context.Context, instanceID, automationID string, limit int) ([]types.CascadeResult, error)
	PutValidation(ctx context.Context, result types.ValidationResult) error
	ListValidations(ctx context.Context, executionID string) ([]types.ValidationResult, error)

	// Event log — append-only audit trail.
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, instanceID string, limit int) ([]types.Event, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
