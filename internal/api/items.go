package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// ItemsHandler handles item reports, edits, and lifecycle transitions.
type ItemsHandler struct {
	DB      *sql.DB
	Service *lifecycle.Service
}

type transitionRequest struct {
	Status model.Status `json:"status"`
	lifecycle.Payload
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	items, err := h.Service.ListByStatus(r.Context(), status)
	if err != nil {
		serviceError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Service.Get(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// ReportMissing handles POST /api/items/missing.
func (h *ItemsHandler) ReportMissing(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.MissingReport
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.ReportMissing(r.Context(), actor(r), req)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// ReportFound handles POST /api/items/found.
func (h *ItemsHandler) ReportFound(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.FoundReport
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.ReportFound(r.Context(), actor(r), req)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req lifecycle.ItemEdit
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.UpdateDetails(r.Context(), id, actor(r), req)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Transition handles POST /api/items/{id}/transition.
func (h *ItemsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		jsonError(w, http.StatusBadRequest, "status required")
		return
	}

	item, err := h.Service.Transition(r.Context(), id, req.Status, actor(r), req.Payload)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. The optional reason query parameter
// is kept in the recovery envelope.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Service.Delete(r.Context(), id, actor(r), r.URL.Query().Get("reason"))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Restore handles POST /api/items/{id}/restore.
func (h *ItemsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Service.Restore(r.Context(), id, actor(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// GetHistory handles GET /api/items/{id}/history.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	events, err := h.Service.History(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	if events == nil {
		events = []model.ItemEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// GetMatches handles GET /api/items/{id}/matches: the found items the last
// sweep proposed for a missing item.
func (h *ItemsHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if _, err := h.Service.Get(r.Context(), id); err != nil {
		serviceError(w, err)
		return
	}

	matches, err := store.ListMatches(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list matches", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []model.MatchCandidate{}
	}
	jsonResponse(w, http.StatusOK, matches)
}
