package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
)

// TenantMiddleware wraps a handler with an organization-scoped database connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ApiResponse wraps data in the format expected by API clients.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeSuccess wraps data in an ApiResponse.
func writeSuccess(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError writes an error response, logging any encoding failure.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps service errors to HTTP status codes. Unexpected
// errors are logged and reported as 500 with failureCode.
func writeServiceError(w http.ResponseWriter, err error, failureCode, failureMessage string, logger *zap.Logger) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error(), logger)
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), logger)
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), logger)
	default:
		logger.Error(failureMessage, zap.Error(err))
		writeError(w, http.StatusInternalServerError, failureCode, failureMessage, logger)
	}
}
