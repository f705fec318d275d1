package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/aforo/aforo/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// WriteJSON writes an arbitrary payload as a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeTenantMismatch      = "TENANT_MISMATCH"
	CodeAlreadyRedeemed     = "ALREADY_REDEEMED"
	CodeInvalidTransition   = "INVALID_STATE_TRANSITION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

// DomainError maps ledger and token sentinel errors to HTTP responses.
// Unknown errors become a 500 without leaking internals.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenInvalid):
		WriteError(w, http.StatusUnprocessableEntity, "qr code is not valid", CodeTokenInvalid)
	case errors.Is(err, domain.ErrTokenNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeTokenNotFound)
	case errors.Is(err, domain.ErrTenantMismatch):
		WriteError(w, http.StatusForbidden, "qr code belongs to another venue", CodeTenantMismatch)
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		WriteError(w, http.StatusConflict, "guest pass already redeemed", CodeAlreadyRedeemed)
	case errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrGuestPassNotFound),
		errors.Is(err, domain.ErrPromoterNotFound),
		errors.Is(err, domain.ErrWalkInNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, domain.ErrInvalidStateTransition):
		WriteError(w, http.StatusConflict, err.Error(), CodeInvalidTransition)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		WriteError(w, http.StatusConflict, "too much contention, retry the scan", CodeConcurrencyConflict)
	default:
		InternalError(w, "internal server error")
	}
}
