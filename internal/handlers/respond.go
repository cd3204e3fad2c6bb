package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"barista-backend/internal/models"
	"barista-backend/internal/services"
)

// User facing texts. Backend detail never reaches the client.
const (
	msgExhausted  = "Maaf, saya tidak bisa memberikan respons saat ini. Silakan coba lagi."
	msgUnexpected = "Maaf, terjadi kesalahan sistem. Silakan coba lagi dalam beberapa saat."
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(message string) models.ErrorResponse {
	return models.ErrorResponse{Error: message}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid   *services.InvalidInputError
		notFound  *services.NotFoundError
		exhausted *services.BackendExhaustedError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResp(invalid.Message))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp(notFound.Message))
	case errors.As(err, &exhausted):
		log.Printf("[%s] %s %s: %v", r.Header.Get("X-Request-ID"), r.Method, r.URL.Path, exhausted)
		writeJSON(w, http.StatusInternalServerError, errorResp(msgExhausted))
	default:
		log.Printf("[%s] Server error on %s %s: %v", r.Header.Get("X-Request-ID"), r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp(msgUnexpected))
	}
}
