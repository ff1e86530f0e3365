// Package respond writes the JSON bodies shared by every handler.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is returned for business-rule failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// InternalBody is returned for unexpected failures.
type InternalBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("respond: encode payload failed", "error", err)
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// Internal writes a 500 with {"error": message, "details": details}.
func Internal(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusInternalServerError, InternalBody{Error: message, Details: details})
}
