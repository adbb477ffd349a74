package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// ErrorStatus maps a sentinel error to the HTTP status it produces
type ErrorStatus struct {
	Err    error
	Status int
}

// WriteServiceError writes err using the first matching entry in statuses.
// Client errors (4xx) expose the error text; anything unmapped is logged
// and answered with a generic 500 so no internal detail leaks.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, statuses []ErrorStatus) {
	for _, s := range statuses {
		if errors.Is(err, s.Err) {
			if s.Status >= http.StatusInternalServerError {
				break
			}
			WriteErrorMessage(w, s.Status, err.Error())
			return
		}
	}

	observability.FromContext(r.Context()).WithError(err).Error("Request failed")
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
