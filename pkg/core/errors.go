package core

import (
	"fmt"
)

// Error represents an API error.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"

	// ErrInvalidState covers operations against a session in the wrong
	// lifecycle state: audio to a completed session, joining an ended
	// session, or audio on a connection that never joined.
	ErrInvalidState ErrorType = "invalid_state_error"

	// ErrCodeSpaceExhausted is terminal for session creation: the join-code
	// allocator ran out of retry attempts.
	ErrCodeSpaceExhausted ErrorType = "code_space_exhausted_error"

	// ErrUpstream marks a failed external capability call (transcription,
	// generation, synthesis, analysis). The pipeline and finalization
	// absorb these into fallbacks; they never reach a caller as a fatal
	// turn or end-session failure.
	ErrUpstream ErrorType = "upstream_error"

	ErrAPI ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewInvalidStateError creates an invalid state error with a machine code.
func NewInvalidStateError(message, code string) *Error {
	return &Error{
		Type:    ErrInvalidState,
		Message: message,
		Code:    code,
	}
}

// NewCodeSpaceExhaustedError creates a join-code allocation failure.
func NewCodeSpaceExhaustedError(attempts int) *Error {
	return &Error{
		Type:    ErrCodeSpaceExhausted,
		Message: fmt.Sprintf("join code allocation failed after %d attempts", attempts),
	}
}

// NewUpstreamError wraps a failed external capability call.
func NewUpstreamError(capability string, underlying error) *Error {
	return &Error{
		Type:    ErrUpstream,
		Message: fmt.Sprintf("%s: %v", capability, underlying),
		Code:    capability,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// Codes used on ErrInvalidState errors.
const (
	CodeSessionEnded = "session_ended"
	CodeNotBound     = "not_bound"
)
