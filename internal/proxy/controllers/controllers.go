package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grabarr/grabarr/internal/browse"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/store/sqlite"
)

type ErrorResponse struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteErrorResponse maps known sentinel errors onto HTTP status codes and
// writes a JSON error body.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sqlite.ErrNotFound),
		errors.Is(err, runner.ErrJobNotFound),
		errors.Is(err, browse.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sqlite.ErrValidation):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:  status,
		Message: err.Error(),
	})
}

// ReadJSON decodes a request body, rejecting unknown fields.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
