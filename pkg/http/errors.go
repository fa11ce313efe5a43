package http

import (
	"encoding/json"
	"net/http"
)

// Error codes written in ErrorResponse.Error
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeForbidden          = "forbidden"
	CodeNotActivated       = "not_activated"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeInvalidOrExpired   = "invalid_or_expired"
	CodeDeliveryFailed     = "delivery_failed"
	CodeOriginNotAllowed   = "origin_not_allowed"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeInternalError      = "internal_error"
)

// FieldError names one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string       `json:"error"`             // Machine-readable error code
	Message string       `json:"message"`           // Human-readable message
	Details string       `json:"details,omitempty"` // Optional additional context
	Fields  []FieldError `json:"fields,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message, Details: details})
}

// WriteValidationError writes a 400 listing every rejected field
func WriteValidationError(w http.ResponseWriter, fields []FieldError) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationFailed,
		Message: "Validation failed",
		Fields:  fields,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials")
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// WriteForbiddenOrigin rejects a cross-origin request without naming the rule that failed
func WriteForbiddenOrigin(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeOriginNotAllowed, "Not allowed by CORS")
}

func WriteNotActivated(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeNotActivated, "Please activate your account first")
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

func WriteInvalidOrExpired(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeInvalidOrExpired, "Invalid or expired token")
}

func WriteDeliveryFailed(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeDeliveryFailed, "Failed to send email, please try again")
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
