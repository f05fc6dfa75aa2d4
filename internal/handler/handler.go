// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorResponse is the JSON body for every error. errorCode identifies
// the offending input field when the failure is a validation rejection.
type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error body. errorCode may be empty.
func writeError(w http.ResponseWriter, status int, message, errorCode string) {
	writeJSON(w, status, errorResponse{Message: message, ErrorCode: errorCode})
}

// decodeJSON decodes the request body into dst. Returns false after
// writing a 400 response when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return false
	}
	return true
}

// formatTimestamp renders a UTC timestamp the way clients expect.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + "+00:00"
}

// Hello is the root endpoint.
// GET /
func Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server running"})
}

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Resource not found", "")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}
