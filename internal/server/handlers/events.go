package handlers

import "net/http"

// ListBreakers returns every circuit breaker record for this instance.
func (h *Handlers) ListBreakers(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.Breakers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing breakers failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// ListEvents returns recent audit events for this instance.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.Events(r.Context(), queryLimit(r, 100))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing events failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}
