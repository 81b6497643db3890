package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline errors by how the run must react to them.
type ErrorType string

const (
	// ErrTypeConfig marks bad or missing configuration (revision, cache
	// dir, windows). Fatal, detected before any fetch.
	ErrTypeConfig ErrorType = "CONFIG"
	// ErrTypeDataSource marks dataset fetch or parse failures. Fatal.
	ErrTypeDataSource ErrorType = "DATA_SOURCE"
	// ErrTypePriceFetch marks a single-ticker price fetch failure. The
	// run continues with missing returns for that ticker unless it is
	// the benchmark, which escalates to fatal.
	ErrTypePriceFetch ErrorType = "PRICE_FETCH"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
)

// AppError is the application error carrying its taxonomy type, an
// optional cause and free-form context (ticker, revision, path).
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewDataSourceError creates a dataset source error
func NewDataSourceError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataSource, message, cause)
}

// NewPriceFetchError creates a price fetch error for one ticker
func NewPriceFetchError(ticker, message string, cause error) *AppError {
	return NewAppError(ErrTypePriceFetch, message, cause).WithContext("ticker", ticker)
}

// NewStorageError creates a cache/storage error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// IsType reports whether err (or anything it wraps) is an AppError of
// the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return IsType(err, ErrTypeConfig) }

// IsDataSourceError reports whether err is a dataset source error.
func IsDataSourceError(err error) bool { return IsType(err, ErrTypeDataSource) }

// IsPriceFetchError reports whether err is a price fetch error.
func IsPriceFetchError(err error) bool { return IsType(err, ErrTypePriceFetch) }

// Ticker extracts the ticker context from a price fetch error, or "".
func Ticker(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if t, ok := appErr.Context["ticker"].(string); ok {
			return t
		}
	}
	return ""
}
