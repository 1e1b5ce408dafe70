package api

import (
	"encoding/json"
	"net/http"
)

// Error codes surfaced in the response envelope. Auth codes never reveal
// which check failed beyond their category.
const (
	CodeInvalidAPIKey          = "INVALID_API_KEY"
	CodeInvalidAdminSecret     = "INVALID_ADMIN_SECRET"
	CodeAgencyNotFound         = "AGENCY_NOT_FOUND"
	CodeAgencyExists           = "AGENCY_EXISTS"
	CodeClientNotFound         = "CLIENT_NOT_FOUND"
	CodeNotFound               = "NOT_FOUND"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeIdempotencyCheckFailed = "IDEMPOTENCY_CHECK_FAILED"
	CodeTokenInvalid           = "PDF_TOKEN_INVALID"
	CodeTokenExpired           = "PDF_TOKEN_EXPIRED"
	CodeTokenMismatch          = "PDF_TOKEN_MISMATCH"
	CodeBadRequest             = "BAD_REQUEST"
	CodeStoreUnavailable       = "STORE_UNAVAILABLE"
	CodeInternal               = "INTERNAL"
)

// errorBody is the structured error envelope all user-visible failures use.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
