package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error the server returns.
type ErrorBody struct {
	Errors []ErrorEntry `json:"errors"`
}

// ErrorEntry is one reported error.
type ErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a single-error JSON response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Errors: []ErrorEntry{{Code: code, Message: message}}})
}
