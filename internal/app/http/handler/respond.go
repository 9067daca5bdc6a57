package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrAlreadySigned):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidEnvelope),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrParse),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrUnsupportedAlgorithm),
		errors.Is(err, domain.ErrInvalidCertificate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// their text is not echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed", logger.Err(err))
		writeErr(w, status, http.StatusText(status))
		return
	}
	writeErr(w, status, err.Error())
}
