package api

import (
	"encoding/json"
	"net/http"
)

// GetContext обрабатывает GET /api/v1/contexts/{id}.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Contexts.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "context not found") {
		return
	}
	Success(w, c)
}

// SetContext обрабатывает PUT /api/v1/contexts/{id}.
// Состояние должно быть JSON-объектом.
func (h *Handler) SetContext(w http.ResponseWriter, r *http.Request) {
	var req SetContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(req.State, &obj); err != nil || obj == nil {
		BadRequest(w, "state must be a JSON object")
		return
	}

	id := r.PathValue("id")
	if err := h.store.Contexts.Set(r.Context(), id, req.State); HandleError(w, h.logger, err, "context not found") {
		return
	}
	c, err := h.store.Contexts.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "context not found") {
		return
	}
	Success(w, c)
}
