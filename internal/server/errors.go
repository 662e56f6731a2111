package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"rag-chatbot/internal/apperr"
)

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// statusFor maps an error kind to the HTTP status of the JSON API.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrDocumentLoaded):
		return http.StatusConflict
	case errors.Is(err, apperr.Invalid):
		return http.StatusBadRequest
	case errors.Is(err, apperr.Index), errors.Is(err, apperr.Busy):
		return http.StatusConflict
	case errors.Is(err, apperr.Auth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.Network):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, r, status, errorResponse{
		Error:   http.StatusText(status),
		Kind:    string(apperr.KindOf(err)),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing response")
	}
}
