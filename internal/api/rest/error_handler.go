package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/davidleathers/invoice-anomaly-backend/internal/domain/errors"
)

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// writeError maps an error to the JSON error envelope. Domain errors carry
// their own status code and machine-readable code; everything else becomes
// an opaque 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		if appErr.StatusCode >= 500 {
			slog.ErrorContext(r.Context(), "request failed",
				"path", r.URL.Path,
				"code", appErr.Code,
				"error", err)
		}
		writeJSON(w, appErr.StatusCode, ErrorResponse{Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]interface{}, len(validationErrs))
		for _, fieldErr := range validationErrs {
			details[strings.ToLower(fieldErr.Field())] = fmt.Sprintf("failed %q validation", fieldErr.Tag())
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Code:    "VALIDATION_FAILED",
			Message: "Request validation failed",
			Details: details,
		}})
		return
	}

	slog.ErrorContext(r.Context(), "unhandled error",
		"path", r.URL.Path,
		"error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}})
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Code:    code,
		Message: message,
	}})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorDetail{
		Code:    "UNAUTHORIZED",
		Message: message,
	}})
}
