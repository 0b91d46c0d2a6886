package models

// ErrorResponse is the failure body returned by the inference service.
// Detail is usually a string, but validation failures may carry a structured value,
// so it is decoded loosely and inspected by the caller.
type ErrorResponse struct {
	Detail interface{} `json:"detail"`
}

// Detail messages emitted by the stub backend
const (
	DetailTextTooShort   = "text too short"
	DetailTextTooLong    = "text too long"
	DetailInvalidRequest = "invalid request body"
	DetailReverseFailed  = "reverse_engineering_failed"
	DetailRateLimited    = "rate_limit_exceeded"
)
