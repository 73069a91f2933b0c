// Package types defines the public domain types for the Halcyon healing engine.
package types

// HealingLevel identifies a tier of the remediation cascade. The declaration
// order is the escalation order.
type HealingLevel string

// HealingLevel values, lowest scope first.
const (
	LevelEntity      HealingLevel = "ENTITY"
	LevelDevice      HealingLevel = "DEVICE"
	LevelIntegration HealingLevel = "INTEGRATION"
)

// Levels returns every healing level in escalation order.
func Levels() []HealingLevel {
	return []HealingLevel{LevelEntity, LevelDevice, LevelIntegration}
}

// Rank returns the position of a level in the escalation order, or -1 for an
// unknown level.
func (l HealingLevel) Rank() int {
	switch l {
	case LevelEntity:
		return 0
	case LevelDevice:
		return 1
	case LevelIntegration:
		return 2
	}
	return -1
}

// TriggerType classifies why a cascade was started.
type TriggerType string

const (
	TriggerFailure TriggerType = "trigger_failure"
	OutcomeFailure TriggerType = "outcome_failure"
	ManualTrigger  TriggerType = "manual"
)

// RoutingStrategy names how the orchestrator selected its starting level.
type RoutingStrategy string

const (
	RoutingIntelligent RoutingStrategy = "intelligent"
	RoutingSequential  RoutingStrategy = "sequential"
)

// ActionType classifies a single healing attempt.
type ActionType string

const (
	ActionRetryService      ActionType = "retry_service_call"
	ActionAlternateParams   ActionType = "alternative_parameters"
	ActionDeviceReconnect   ActionType = "device_reconnect"
	ActionDeviceReboot      ActionType = "device_reboot"
	ActionDeviceRediscover  ActionType = "device_rediscover"
	ActionIntegrationReload ActionType = "integration_reload"
)

// DeviceFamily groups integrations by transport so the device healer knows
// which actions a device can honor.
type DeviceFamily string

const (
	FamilyZigbee  DeviceFamily = "zigbee"
	FamilyZWave   DeviceFamily = "zwave"
	FamilyWifi    DeviceFamily = "wifi"
	FamilyCloud   DeviceFamily = "cloud"
	FamilyUnknown DeviceFamily = "unknown"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
)

// AlertLevel replaces string-typed alert levels with a proper enum.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventValidationCompleted   EventKind = "VALIDATION_COMPLETED"
	EventCascadeStarted        EventKind = "CASCADE_STARTED"
	EventCascadeCompleted      EventKind = "CASCADE_COMPLETED"
	EventCascadeTimeout        EventKind = "CASCADE_TIMEOUT"
	EventLevelAttempted        EventKind = "LEVEL_ATTEMPTED"
	EventLevelSkipped          EventKind = "LEVEL_SKIPPED"
	EventCircuitBreakerOpened  EventKind = "CIRCUIT_BREAKER_OPENED"
	EventCircuitBreakerSkipped EventKind = "CIRCUIT_BREAKER_SKIPPED"
	EventPatternLearned        EventKind = "PATTERN_LEARNED"
	EventPlanGenerationFlagged EventKind = "PLAN_GENERATION_FLAGGED"
	EventHealthValidated       EventKind = "HEALTH_VALIDATED"
	EventHealthDegraded        EventKind = "HEALTH_DEGRADED"
)

// InferenceMethod records how a desired state was derived.
type InferenceMethod string

const (
	InferenceObserved InferenceMethod = "observed"
	InferenceDeclared InferenceMethod = "declared"
)
