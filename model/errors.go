package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrIncomplete      = "INCOMPLETE"
	ErrInternalError   = "INTERNAL_ERROR"
)

// ActionSet-specific error codes.
const (
	ErrInvalidIndex       = "INVALID_INDEX"
	ErrNoEditableAction   = "NO_EDITABLE_ACTION"
	ErrAlreadyConsumed    = "ALREADY_CONSUMED"
	ErrRightLimitExceeded = "RIGHT_LIMIT_EXCEEDED"
)

// ErrorEnvelope is the standard error response envelope. It implements the
// error interface so engine operations can return it directly.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error. The message must not reveal
// whether the target entity exists.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewIncompleteError returns an INCOMPLETE error listing the missing fields.
// Distinguished from VALIDATION_ERROR so callers can render "fill in the
// rest" instead of "fix this field".
func NewIncompleteError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrIncomplete,
		Message: "One or more required fields are missing",
		Details: details,
	}
}

// NewInvalidIndexError returns an INVALID_INDEX error.
func NewInvalidIndexError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidIndex, Message: msg}
}

// NewNoEditableActionError returns a NO_EDITABLE_ACTION error.
func NewNoEditableActionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNoEditableAction, Message: msg}
}

// NewAlreadyConsumedError returns an ALREADY_CONSUMED error. This marks the
// idempotency boundary of a finished workflow; callers must not retry.
func NewAlreadyConsumedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrAlreadyConsumed, Message: msg}
}

// NewRightLimitExceededError returns a RIGHT_LIMIT_EXCEEDED error.
func NewRightLimitExceededError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRightLimitExceeded, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// CodeOf returns the envelope code of err, or INTERNAL_ERROR for any other
// error value.
func CodeOf(err error) string {
	if ee, ok := err.(*ErrorEnvelope); ok {
		return ee.Code
	}
	return ErrInternalError
}
