package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an outbound call failure
type Code string

const (
	CodeNetworkError    Code = "NETWORK_ERROR"
	CodeTimeout         Code = "TIMEOUT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeServerError     Code = "SERVER_ERROR"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeFlowExpired     Code = "FLOW_EXPIRED"
	CodeNoAccessToken   Code = "NO_ACCESS_TOKEN"
	CodeUnknown         Code = "UNKNOWN_ERROR"
)

// APIError is a classified failure. Status is 0 when no response was received.
type APIError struct {
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Code      Code   `json:"code"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a non-retryable APIError with the given code
func NewError(code Code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// FromStatus builds the APIError for a non-2xx HTTP status
func FromStatus(status int, message string, details any) *APIError {
	code, retryable := ClassifyStatus(status)
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{
		Message:   message,
		Status:    status,
		Code:      code,
		Retryable: retryable,
		Details:   details,
	}
}

// ClassifyStatus maps an HTTP status to a code and its retryability.
// 5xx, 429 and 408 are retryable; every other status is not.
func ClassifyStatus(status int) (Code, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimited, true
	case status == http.StatusRequestTimeout:
		return CodeTimeout, true
	case status >= 500:
		return CodeServerError, true
	case status == http.StatusBadRequest:
		return CodeBadRequest, false
	case status == http.StatusUnauthorized:
		return CodeUnauthorized, false
	case status == http.StatusForbidden:
		return CodeForbidden, false
	case status == http.StatusNotFound:
		return CodeNotFound, false
	case status == http.StatusConflict:
		return CodeConflict, false
	case status == http.StatusUnprocessableEntity:
		return CodeValidationError, false
	case status >= 400:
		return CodeBadRequest, false
	default:
		return CodeUnknown, false
	}
}

// AsAPIError extracts an *APIError from an error chain
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CodeOf returns the classified code of err, or UNKNOWN_ERROR
func CodeOf(err error) Code {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Code
	}
	return CodeUnknown
}

// IsReconnectRequired reports whether the user must reconnect the platform
func IsReconnectRequired(err error) bool {
	code := CodeOf(err)
	return code == CodeUnauthorized || code == CodeForbidden
}

// UserMessage returns the user-facing text for a failure code
func UserMessage(code Code) string {
	switch code {
	case CodeUnauthorized, CodeForbidden:
		return "reconnect required"
	case CodeRateLimited, CodeServerError, CodeTimeout, CodeNetworkError:
		return "temporary failure, will retry later"
	case CodeValidationError, CodeBadRequest:
		return "listing was rejected by the platform"
	case CodeNotFound:
		return "listing no longer exists on the platform"
	case CodeConflict:
		return "listing conflicts with an existing one on the platform"
	case CodeInvalidState, CodeFlowExpired:
		return "authorization expired, please connect again"
	case CodeNoAccessToken:
		return "platform did not grant access"
	default:
		return "unexpected platform error"
	}
}
