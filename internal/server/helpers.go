package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Envelope is the standard response wrapper: data on success, a message
// on failure, never both.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a success envelope with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{Success: false, Error: message})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// pathSuffix extracts the path segment after a route prefix, stripped of
// any trailing slash. Returns "" when nothing follows the prefix.
func pathSuffix(r *http.Request, prefix string) string {
	suffix := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(suffix, "/")
}

// boolParam reads a query flag: present with no value, "1", or "true"
// all count as set.
func boolParam(r *http.Request, name string) bool {
	if !r.URL.Query().Has(name) {
		return false
	}
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "" || v == "1" || v == "true"
}
