package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
	"reportengine-backend/internal/storage"
)

type errorResponse struct {
	Error   string              `json:"error"`
	Details []query.ErrorDetail `json:"details,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("invalid json payload")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps the engine error taxonomy onto HTTP statuses:
// validation and config errors are the caller's fault, store misses are
// 404, execution errors are upstream failures.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *query.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   validationErr.Message,
			Details: validationErr.Details,
		})
		return
	}
	var configErr *reportcfg.ConfigError
	if errors.As(err, &configErr) {
		writeError(w, http.StatusBadRequest, configErr.Error())
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		writeError(w, http.StatusInternalServerError, execErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
