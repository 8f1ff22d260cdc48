package errors

import (
	"fmt"
	"net/http"
)

// NewPayloadError reports a webhook payload that cannot be normalized
func NewPayloadError(event, reason string) *AppError {
	return New(ErrCodePayloadMalformed, reason).
		WithContext("event", event)
}

// NewUnresolvedError reports an opaque identifier that could not be mapped to a phone
func NewUnresolvedError(identifier string) *AppError {
	return New(ErrCodeIdentityUnresolved, "identity unresolved").
		WithContext("identifier", identifier)
}

// NewStoreMissError reports a message lookup that matched nothing
func NewStoreMissError(messageID string) *AppError {
	return New(ErrCodeStoreMiss, "message not found").
		WithContext("message_id", messageID)
}

func NewTransitionError(from, to string) *AppError {
	return New(ErrCodeIllegalTransition, fmt.Sprintf("illegal status transition %s -> %s", from, to)).
		WithContext("from", from).
		WithContext("to", to)
}

func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewCollaboratorError wraps a failure of a cache, queue or lookup dependency
func NewCollaboratorError(collaborator string, err error) *AppError {
	return Wrap(err, ErrCodeCollaboratorFailure, fmt.Sprintf("%s unavailable", collaborator)).
		WithContext("collaborator", collaborator)
}

// NewAPIError wraps a provider API failure; 5xx, 408 and 429 are retryable
func NewAPIError(provider, endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeProviderAPI, fmt.Sprintf("%s API call failed", provider)).
		WithContext("provider", provider).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	return appErr
}

// HTTPStatusCode maps an error to the status returned to the webhook caller.
// Content problems are acknowledged with 200 so the gateway does not redeliver.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCode(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodePayloadMalformed, ErrCodeUnknownEvent, ErrCodeIdentityUnresolved,
		ErrCodeStoreMiss, ErrCodeIllegalTransition, ErrCodeCollaboratorFailure:
		return http.StatusOK
	case ErrCodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
