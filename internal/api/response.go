package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/najdeno/internal/lifecycle"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// serviceError maps a lifecycle error kind to an HTTP status.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrConflict):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrExternalDependency):
		slog.Error("dependency failure", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		slog.Error("unexpected error", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
