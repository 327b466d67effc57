package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentui/agentd/agents"
	"github.com/agentui/agentd/plugins"
	"github.com/agentui/agentd/vectordb"
)

// envelope is the response shape every endpoint returns, matching what
// the dashboard expects: {"success": bool, "data": ..., "error": "..."}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vectordb.ErrInvalidInput),
		errors.Is(err, vectordb.ErrUnknownProvider),
		errors.Is(err, vectordb.ErrMissingCredential),
		errors.Is(err, agents.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, vectordb.ErrCollectionNotFound),
		errors.Is(err, agents.ErrNotFound),
		errors.Is(err, plugins.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, vectordb.ErrCollectionExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, vectordb.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
