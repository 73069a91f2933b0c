// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	ValidationsTotal      = expvar.NewInt("validations_total")
	ValidationsFailed     = expvar.NewInt("validations_failed")
	CascadesTotal         = expvar.NewInt("cascades_total")
	CascadesSucceeded     = expvar.NewInt("cascades_succeeded")
	CascadesTimedOut      = expvar.NewInt("cascades_timed_out")
	EntityHeals           = expvar.NewInt("entity_heals")
	DeviceHeals           = expvar.NewInt("device_heals")
	IntegrationReloads    = expvar.NewInt("integration_reloads")
	BreakerOpens          = expvar.NewInt("breaker_opens")
	BreakerSkips          = expvar.NewInt("breaker_skips")
	PatternsLearned       = expvar.NewInt("patterns_learned")
	PlanGenerationFlagged = expvar.NewInt("plan_generation_flagged")
	AlertsDispatched      = expvar.NewInt("alerts_dispatched")
	AlertsFailed          = expvar.NewInt("alerts_failed")
)
