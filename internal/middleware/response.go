package middleware

import (
	"encoding/json"
	"net/http"
)

// CSRFErrorCode is the stable machine-readable code of a CSRF rejection.
const CSRFErrorCode = "CSRF_TOKEN_INVALID"

// CSRFErrorResponse is the body of a CSRF rejection. It never says which
// check failed.
type CSRFErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeCSRFError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(CSRFErrorResponse{
		Error:   "CSRF validation failed",
		Code:    CSRFErrorCode,
		Message: "Invalid or missing CSRF token. Please refresh the page and try again.",
	})
}
