// Package engine wires the healing pipeline together and exposes the
// operations the server and CLI drive: recording executions and service
// calls, validating outcomes, and running manual cascades.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/halcyon-systems/halcyon/internal/breaker"
	"github.com/halcyon-systems/halcyon/internal/cascade"
	"github.com/halcyon-systems/halcyon/internal/healer"
	"github.com/halcyon-systems/halcyon/internal/health"
	"github.com/halcyon-systems/halcyon/internal/platform"
	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/internal/tasks"
	"github.com/halcyon-systems/halcyon/internal/validator"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// declaredConfidence is the confidence assigned to operator-declared desired
// states; learned states start lower and earn confidence per observation.
const declaredConfidence = 1.0

// Engine is the assembled healing engine.
type Engine struct {
	store      provider.Store
	platform   platform.Client
	tracker    *health.Tracker
	breaker    *breaker.Breaker
	validator  *validator.Validator
	cascades   *cascade.Orchestrator
	registry   *tasks.Registry
	instanceID string
	config     types.HealingConfig
	logger     *slog.Logger
	entropy    *ulid.MonotonicEntropy
}

// New assembles an Engine from a store, a platform client, and an optional
// alerter.
func New(ctx context.Context, store provider.Store, client platform.Client, alerter cascade.Alerter, instanceID string, cfg types.HealingConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Normalize()

	registry := tasks.NewRegistry(ctx, logger)
	tracker := health.New(store, cfg, logger)
	brk := breaker.New(store, cfg, logger)

	entity := healer.NewEntityHealer(client, store, cfg, logger)
	device := healer.NewDeviceHealer(client, store, cfg, logger)
	integration := healer.NewIntegrationHealer(client, store, brk, cfg, logger)
	orchestrator := cascade.New(store, entity, device, integration, alerter, cfg, logger)
	v := validator.New(store, client, tracker, orchestrator, registry, cfg, logger)

	return &Engine{
		store:      store,
		platform:   client,
		tracker:    tracker,
		breaker:    brk,
		validator:  v,
		cascades:   orchestrator,
		registry:   registry,
		instanceID: instanceID,
		config:     cfg,
		logger:     logger,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// RecordExecution registers an automation execution for later outcome
// validation. A generated execution id is returned when none is given.
func (e *Engine) RecordExecution(ctx context.Context, automationID, executionID string) (string, error) {
	if automationID == "" {
		return "", errors.New("automation id is required")
	}
	if executionID == "" {
		executionID = ulid.MustNew(ulid.Now(), e.entropy).String()
	}
	rec := types.ExecutionRecord{
		ExecutionID:  executionID,
		InstanceID:   e.instanceID,
		AutomationID: automationID,
		ExecutedAt:   time.Now(),
	}
	if err := e.store.PutExecution(ctx, rec); err != nil {
		return "", fmt.Errorf("recording execution: %w", err)
	}
	return executionID, nil
}

// RecordServiceCall stores a service invocation so the entity healer can
// replay it later.
func (e *Engine) RecordServiceCall(ctx context.Context, entityID, domain, service string, data map[string]interface{}) error {
	if entityID == "" || domain == "" || service == "" {
		return errors.New("entity id, domain, and service are required")
	}
	return e.store.PutServiceCall(ctx, types.ServiceCall{
		InstanceID: e.instanceID,
		EntityID:   entityID,
		Domain:     domain,
		Service:    service,
		Data:       data,
		CalledAt:   time.Now(),
	})
}

// DeclareDesiredState records an operator-declared target for an entity.
func (e *Engine) DeclareDesiredState(ctx context.Context, automationID, entityID, state string, attributes map[string]interface{}) error {
	if automationID == "" || entityID == "" || state == "" {
		return errors.New("automation id, entity id, and state are required")
	}
	return e.store.PutDesiredState(ctx, types.DesiredState{
		InstanceID:      e.instanceID,
		AutomationID:    automationID,
		EntityID:        entityID,
		State:           state,
		Attributes:      attributes,
		Confidence:      declaredConfidence,
		InferenceMethod: types.InferenceDeclared,
		UpdatedAt:       time.Now(),
	})
}

// Validate runs outcome validation for one execution.
func (e *Engine) Validate(ctx context.Context, executionID string) (*types.ValidationResult, error) {
	return e.validator.Validate(ctx, executionID, 0)
}

// Heal runs a manual cascade for the given entities synchronously.
func (e *Engine) Heal(ctx context.Context, automationID string, entityIDs []string) (*types.CascadeResult, error) {
	if len(entityIDs) == 0 {
		return nil, errors.New("at least one entity id is required")
	}
	return e.cascades.Heal(ctx, types.HealingContext{
		InstanceID:     e.instanceID,
		AutomationID:   automationID,
		Trigger:        types.ManualTrigger,
		FailedEntities: entityIDs,
	})
}

// Health returns the stored health status for an automation, or nil when it
// was never validated.
func (e *Engine) Health(ctx context.Context, automationID string) (*types.AutomationHealthStatus, error) {
	return e.tracker.Get(ctx, e.instanceID, automationID)
}

// ReliabilityScore returns total successes over total executions.
func (e *Engine) ReliabilityScore(ctx context.Context, automationID string) (float64, error) {
	return e.tracker.ReliabilityScore(ctx, e.instanceID, automationID)
}

// ResetHealth re-baselines an automation's health gate.
func (e *Engine) ResetHealth(ctx context.Context, automationID string) (*types.AutomationHealthStatus, error) {
	return e.tracker.Reset(ctx, e.instanceID, automationID)
}

// Breakers lists the circuit breaker records for this instance.
func (e *Engine) Breakers(ctx context.Context) ([]types.CircuitBreakerRecord, error) {
	return e.store.ListBreakers(ctx, e.instanceID)
}

// CascadeResults lists recent cascade results for an automation.
func (e *Engine) CascadeResults(ctx context.Context, automationID string, limit int) ([]types.CascadeResult, error) {
	return e.store.ListCascadeResults(ctx, e.instanceID, automationID, limit)
}

// Events lists recent audit events for this instance.
func (e *Engine) Events(ctx context.Context, limit int) ([]types.Event, error) {
	return e.store.ListEvents(ctx, e.instanceID, limit)
}

// Validator exposes the outcome validator, used by the watcher.
func (e *Engine) Validator() *validator.Validator {
	return e.validator
}

// Store exposes the backing store, used by the watcher and tests.
func (e *Engine) Store() provider.Store {
	return e.store
}

// Ping checks store connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Drain stops accepting new background cascades and waits for in-flight
// ones under the configured grace period.
func (e *Engine) Drain(ctx context.Context) error {
	grace := time.Duration(e.config.DrainGraceSeconds) * time.Second
	drainCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return e.registry.Drain(drainCtx)
}
