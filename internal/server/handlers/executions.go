package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type recordExecutionRequest struct {
	AutomationID string `json:"automationId"`
	ExecutionID  string `json:"executionId,omitempty"`
}

// RecordExecution registers an automation execution for outcome validation.
func (h *Handlers) RecordExecution(w http.ResponseWriter, r *http.Request) {
	var req recordExecutionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	id, err := h.engine.RecordExecution(r.Context(), req.AutomationID, req.ExecutionID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "recording execution failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"executionId": id})
}

// ValidateExecution runs outcome validation for one execution immediately.
func (h *Handlers) ValidateExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	result, err := h.engine.Validate(r.Context(), executionID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "validation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type recordServiceCallRequest struct {
	EntityID string                 `json:"entityId"`
	Domain   string                 `json:"domain"`
	Service  string                 `json:"service"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// RecordServiceCall stores a service invocation for later replay by the
// entity healer.
func (h *Handlers) RecordServiceCall(w http.ResponseWriter, r *http.Request) {
	var req recordServiceCallRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.engine.RecordServiceCall(r.Context(), req.EntityID, req.Domain, req.Service, req.Data); err != nil {
		h.writeError(w, http.StatusBadRequest, "recording service call failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type declareDesiredStateRequest struct {
	AutomationID string                 `json:"automationId"`
	EntityID     string                 `json:"entityId"`
	State        string                 `json:"state"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// DeclareDesiredState records an operator-declared desired state.
func (h *Handlers) DeclareDesiredState(w http.ResponseWriter, r *http.Request) {
	var req declareDesiredStateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.engine.DeclareDesiredState(r.Context(), req.AutomationID, req.EntityID, req.State, req.Attributes); err != nil {
		h.writeError(w, http.StatusBadRequest, "declaring desired state failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "declared"})
}
