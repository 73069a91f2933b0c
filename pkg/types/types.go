package types

import "time"

// HealingContext carries everything the cascade orchestrator needs to
// remediate one failed automation execution. It is created by the outcome
// validator (or a manual trigger), never mutated afterwards, and consumed by
// exactly one cascade.
type HealingContext struct {
	InstanceID     string      `json:"instanceId"`
	AutomationID   string      `json:"automationId"`
	ExecutionID    string      `json:"executionId"`
	Trigger        TriggerType `json:"trigger"`
	FailedEntities []string    `json:"failedEntities"`
	TimeoutSeconds int         `json:"timeoutSeconds"`
}

// CascadeResult summarizes one cascade execution. Persisted for statistics
// and audit.
type CascadeResult struct {
	CascadeID          string          `json:"cascadeId"`
	InstanceID         string          `json:"instanceId"`
	AutomationID       string          `json:"automationId"`
	ExecutionID        string          `json:"executionId"`
	Success            bool            `json:"success"`
	RoutingStrategy    RoutingStrategy `json:"routingStrategy"`
	LevelsAttempted    []HealingLevel  `json:"levelsAttempted"`
	SuccessfulLevel    HealingLevel    `json:"successfulLevel,omitempty"`
	SuccessfulStrategy string          `json:"successfulStrategy,omitempty"`
	EntityResults      map[string]bool `json:"entityResults"`
	DurationSeconds    float64         `json:"durationSeconds"`
	ErrorMessage       string          `json:"errorMessage,omitempty"`
	PlanRequested      bool            `json:"planRequested,omitempty"`
	StartedAt          time.Time       `json:"startedAt"`
	CompletedAt        time.Time       `json:"completedAt"`
}

// HealingAction is one per-attempt outcome at any level. Append-only; many
// per cascade.
type HealingAction struct {
	CascadeID       string       `json:"cascadeId"`
	Level           HealingLevel `json:"level"`
	Action          ActionType   `json:"action"`
	EntityID        string       `json:"entityId,omitempty"`
	DeviceID        string       `json:"deviceId,omitempty"`
	IntegrationID   string       `json:"integrationId,omitempty"`
	Attempt         int          `json:"attempt"`
	Success         bool         `json:"success"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	DurationSeconds float64      `json:"durationSeconds"`
	Timestamp       time.Time    `json:"timestamp"`
}

// DeviceHealResult is the aggregate outcome of a device-level pass.
type DeviceHealResult struct {
	Success          bool            `json:"success"`
	DevicesAttempted []string        `json:"devicesAttempted"`
	DevicesHealed    []string        `json:"devicesHealed"`
	ActionsAttempted []ActionType    `json:"actionsAttempted"`
	FinalAction      ActionType      `json:"finalAction,omitempty"`
	EntityResults    map[string]bool `json:"entityResults"`
}

// CircuitBreakerRecord tracks consecutive reload failures for one
// integration. open_until is set iff consecutive failures reached the
// threshold; any success resets the counter and clears the window. The
// Version field drives optimistic concurrency in the store.
type CircuitBreakerRecord struct {
	InstanceID          string     `json:"instanceId"`
	IntegrationID       string     `json:"integrationId"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	OpenUntil           *time.Time `json:"openUntil,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	Version             int        `json:"version"`
}

// Open reports whether the breaker refuses attempts at the given instant.
func (r *CircuitBreakerRecord) Open(now time.Time) bool {
	return r.OpenUntil != nil && r.OpenUntil.After(now)
}

// AutomationHealthStatus holds the consecutive-success gate and lifetime
// totals for one automation on one instance. TotalExecutions always equals
// TotalSuccesses + TotalFailures. Versioned for optimistic concurrency.
type AutomationHealthStatus struct {
	InstanceID           string     `json:"instanceId"`
	AutomationID         string     `json:"automationId"`
	ConsecutiveSuccesses int        `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int        `json:"consecutiveFailures"`
	IsValidatedHealthy   bool       `json:"isValidatedHealthy"`
	LastValidationAt     *time.Time `json:"lastValidationAt,omitempty"`
	TotalExecutions      int        `json:"totalExecutions"`
	TotalSuccesses       int        `json:"totalSuccesses"`
	TotalFailures        int        `json:"totalFailures"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	Version              int        `json:"version"`
}

// OutcomePattern is a learned record of what state an automation's action
// actually produces for one entity, with a running occurrence count.
type OutcomePattern struct {
	InstanceID         string                 `json:"instanceId"`
	AutomationID       string                 `json:"automationId"`
	EntityID           string                 `json:"entityId"`
	ObservedState      string                 `json:"observedState"`
	ObservedAttributes map[string]interface{} `json:"observedAttributes,omitempty"`
	OccurrenceCount    int                    `json:"occurrenceCount"`
	LastObserved       time.Time              `json:"lastObserved"`
	SuccessfulLevel    HealingLevel           `json:"successfulLevel,omitempty"`
	SuccessfulStrategy string                 `json:"successfulStrategy,omitempty"`
	HealingSuccesses   int                    `json:"healingSuccesses"`
}

// DesiredState is the target an automation is expected to drive an entity to.
type DesiredState struct {
	InstanceID      string                 `json:"instanceId"`
	AutomationID    string                 `json:"automationId"`
	EntityID        string                 `json:"entityId"`
	State           string                 `json:"state"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
	Confidence      float64                `json:"confidence"`
	InferenceMethod InferenceMethod        `json:"inferenceMethod"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// ExecutionRecord is one automation execution awaiting (or finished with)
// outcome validation.
type ExecutionRecord struct {
	ExecutionID  string    `json:"executionId"`
	InstanceID   string    `json:"instanceId"`
	AutomationID string    `json:"automationId"`
	ExecutedAt   time.Time `json:"executedAt"`
	Validated    bool      `json:"validated"`
}

// EntityValidation is the per-entity outcome of one validation pass.
type EntityValidation struct {
	EntityID          string  `json:"entityId"`
	DesiredState      string  `json:"desiredState"`
	ActualState       string  `json:"actualState,omitempty"`
	Achieved          bool    `json:"achieved"`
	TimeToAchievement int64   `json:"timeToAchievementMs,omitempty"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason,omitempty"`
}

// ValidationResult is the outcome of validating one execution against its
// desired states.
type ValidationResult struct {
	ValidationID   string             `json:"validationId"`
	ExecutionID    string             `json:"executionId"`
	InstanceID     string             `json:"instanceId"`
	AutomationID   string             `json:"automationId"`
	OverallSuccess bool               `json:"overallSuccess"`
	Entities       []EntityValidation `json:"entities"`
	CascadeQueued  bool               `json:"cascadeQueued"`
	ValidatedAt    time.Time          `json:"validatedAt"`
}

// ServiceCall is a recorded service invocation against the platform, kept so
// the entity healer can replay the last call for a failing entity.
type ServiceCall struct {
	InstanceID string                 `json:"instanceId"`
	EntityID   string                 `json:"entityId"`
	Domain     string                 `json:"domain"`
	Service    string                 `json:"service"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CalledAt   time.Time              `json:"calledAt"`
}

// Alert is a notification emitted by the engine, fanned out to sinks.
type Alert struct {
	Level        AlertLevel             `json:"level"`
	InstanceID   string                 `json:"instanceId,omitempty"`
	AutomationID string                 `json:"automationId,omitempty"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Event is one append-only audit record.
type Event struct {
	Kind         EventKind              `json:"kind"`
	InstanceID   string                 `json:"instanceId,omitempty"`
	AutomationID string                 `json:"automationId,omitempty"`
	CascadeID    string                 `json:"cascadeId,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}
