package errors

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler provides centralized error handling for the HTTP transport.
// It maps domain AppError types onto API responses so handlers never hand
// raw internal errors to clients.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger.With(slog.String("component", "error_handler")),
	}
}

// HandleError converts any error to a structured response and writes it.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	apiErr := h.toAPIError(err)

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", apiErr.StatusCode),
		slog.String("error_code", apiErr.ErrorCode),
		slog.String("error", err.Error()))

	render.Status(r, apiErr.StatusCode)
	render.JSON(w, r, NewErrorResponse(apiErr))
}

// toAPIError maps domain errors to API errors. Unknown errors become 500s
// with no internal detail leaked.
func (h *ErrorHandler) toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrTypeNotFound:
			return NewWithDetails(http.StatusNotFound, "NOT_FOUND", appErr.Message, appErr.Context)
		case ErrTypeValidation, ErrTypeConfig:
			return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", appErr.Message, appErr.Context)
		case ErrTypePriceFetch, ErrTypeDataSource:
			return NewWithDetails(http.StatusBadGateway, string(appErr.Type), appErr.Message, appErr.Context)
		case ErrTypeStorage:
			return NewWithDetails(http.StatusInternalServerError, "FILESYSTEM_ERROR", appErr.Message, appErr.Context)
		}
	}

	return ErrInternalServer
}
