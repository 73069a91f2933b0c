package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"

	"github.com/halcyon-systems/halcyon/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.engine)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Executions and validation
		r.Post("/executions", h.RecordExecution)
		r.Post("/executions/{executionID}/validate", h.ValidateExecution)

		// Service-call history
		r.Post("/service-calls", h.RecordServiceCall)

		// Desired states
		r.Post("/desired-states", h.DeclareDesiredState)

		// Automations
		r.Get("/automations/{automationID}/health", h.AutomationHealth)
		r.Post("/automations/{automationID}/reset", h.ResetAutomation)
		r.Post("/automations/{automationID}/heal", h.HealAutomation)
		r.Get("/automations/{automationID}/cascades", h.ListCascades)

		// Breakers and events
		r.Get("/breakers", h.ListBreakers)
		r.Get("/events", h.ListEvents)
	})

	r.Method("GET", "/debug/vars", expvar.Handler())
}
