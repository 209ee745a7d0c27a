package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/helper"
	"github.com/kenneth/identity-helper/internal/storage"
)

// APIError represents a transport-level error response. Protocol-level
// failures never take this path; they travel as signed responses.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// WithRequestID returns a copy of e carrying the request ID.
func (e *APIError) WithRequestID(id string) *APIError {
	c := *e
	c.RequestID = id
	return &c
}

// WriteJSON writes the error response as JSON.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(e)
}

// Predefined errors.
var (
	ErrEmptyBody = &APIError{
		Code:       "EmptyBody",
		Message:    "The request body must contain an envelope.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &APIError{
		Code:       "EntityTooLarge",
		Message:    "The envelope exceeds the maximum allowed size.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrUnreadableBody = &APIError{
		Code:       "InvalidRequest",
		Message:    "The request body could not be read.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidEnvelope = &APIError{
		Code:       "InvalidEnvelope",
		Message:    "The envelope could not be decrypted or parsed.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &APIError{
		Code:       "NotFound",
		Message:    "The requested document does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrIntegrity = &APIError{
		Code:       "IntegrityViolation",
		Message:    "The stored document failed verification.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrOracleUnavailable = &APIError{
		Code:       "OracleUnavailable",
		Message:    "The cryptography service is unavailable.",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrInternal = &APIError{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// TranslateError maps an engine error to its transport response.
// Integrity is checked first: a stored envelope that no longer decrypts is
// reported as both ErrIntegrity and ErrDecode.
func TranslateError(err error) *APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, helper.ErrIntegrity):
		return ErrIntegrity
	case errors.Is(err, crypto.ErrOracleUnavailable):
		return ErrOracleUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, helper.ErrDecode):
		return ErrInvalidEnvelope
	default:
		return ErrInternal
	}
}
