package reverseapi

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call for diagnostics. Callers that only display
// errors should rely on Error() and never branch on Kind.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
	KindServiceError Kind = "service_error"
	KindNetworkError Kind = "network_error"
)

// User-facing messages
const (
	MessageTimeout        = "Request timed out. Please try again."
	MessageCanceled       = "Request was cancelled."
	MessageRequestFailed  = "Request failed"
	MessageNetworkFailure = "Network error. Please check your connection and retry."
)

// APIError is the single error type returned by Client. Message is safe to show
// to a user; Status and Cause are kept for logging.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Diagnostic renders the error with its kind, status and cause for log lines.
func (e *APIError) Diagnostic() string {
	s := fmt.Sprintf("kind=%s message=%q", e.Kind, e.Message)
	if e.Status != 0 {
		s += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" cause=%q", e.Cause.Error())
	}
	return s
}

// KindOf returns the kind of err, or "" if err did not come from Client.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func timeoutError(cause error) *APIError {
	return &APIError{Kind: KindTimeout, Message: MessageTimeout, Cause: cause}
}

func canceledError(cause error) *APIError {
	return &APIError{Kind: KindCanceled, Message: MessageCanceled, Cause: cause}
}

func serviceError(status int, message string) *APIError {
	return &APIError{
		Kind:    KindServiceError,
		Status:  status,
		Message: message,
		Cause:   fmt.Errorf("inference service returned status %d", status),
	}
}

func networkError(cause error) *APIError {
	return &APIError{Kind: KindNetworkError, Message: MessageNetworkFailure, Cause: cause}
}
