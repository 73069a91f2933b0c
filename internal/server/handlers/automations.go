package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// AutomationHealth returns the health status and reliability score for one
// automation.
func (h *Handlers) AutomationHealth(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")

	status, err := h.engine.Health(r.Context(), automationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reading health failed", err)
		return
	}
	if status == nil {
		h.writeError(w, http.StatusNotFound, "automation never validated", nil)
		return
	}
	score, err := h.engine.ReliabilityScore(r.Context(), automationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reading reliability failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"health":      status,
		"reliability": score,
	})
}

// ResetAutomation re-baselines an automation's health gate.
func (h *Handlers) ResetAutomation(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	status, err := h.engine.ResetHealth(r.Context(), automationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reset failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

type healRequest struct {
	Entities []string `json:"entities"`
}

// HealAutomation runs a manual healing cascade synchronously.
func (h *Handlers) HealAutomation(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")

	var req healRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	result, err := h.engine.Heal(r.Context(), automationID, req.Entities)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "cascade failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListCascades returns recent cascade results for an automation.
func (h *Handlers) ListCascades(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	limit := queryLimit(r, 20)

	results, err := h.engine.CascadeResults(r.Context(), automationID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing cascades failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func queryLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
