package handlers

import "net/http"

// Health reports server and store liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store unreachable", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
