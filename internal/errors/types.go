package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode categorizes failures inside the ingest pipeline
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigError ErrorCode = "CONFIG_ERROR"

	// Payload errors
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePayloadMalformed ErrorCode = "PAYLOAD_MALFORMED"
	ErrCodeUnknownEvent     ErrorCode = "UNKNOWN_EVENT"

	// Reconciliation outcomes
	ErrCodeIdentityUnresolved ErrorCode = "IDENTITY_UNRESOLVED"
	ErrCodeStoreMiss          ErrorCode = "STORE_MISS"
	ErrCodeIllegalTransition  ErrorCode = "ILLEGAL_TRANSITION"

	// Collaborators
	ErrCodeCollaboratorFailure ErrorCode = "COLLABORATOR_FAILURE"
	ErrCodeDatabaseError       ErrorCode = "DATABASE_ERROR"
	ErrCodeNetworkError        ErrorCode = "NETWORK_ERROR"
	ErrCodeProviderAPI         ErrorCode = "PROVIDER_API"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"

	// Security
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error carried through the ingest pipeline
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value that is emitted when the error is logged
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapRetryable wraps an error and marks it as safe to retry
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err, Retryable: true}
}

// IsRetryable reports whether any AppError in the chain is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetCode extracts the code of the outermost AppError in the chain
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}
