package core

import (
	"errors"
	"fmt"
)

// Error represents an interview orchestration error.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrConfiguration means required connection settings are missing. It
	// prevents a session from ever entering connecting.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrHandshake means the remote agent rejected the session or the network
	// failed while connecting.
	ErrHandshake ErrorType = "handshake_error"
	// ErrToolCallValidation means a tool call carried a malformed payload.
	ErrToolCallValidation ErrorType = "tool_call_validation_error"
	// ErrToolCallRejected means a tool call arrived outside a connected session
	// or named a tool nobody registered.
	ErrToolCallRejected ErrorType = "tool_call_rejected"
	// ErrTransportDisconnect means the remote side closed the session.
	ErrTransportDisconnect ErrorType = "transport_disconnect"
	ErrInvalidRequest      ErrorType = "invalid_request_error"
	ErrAuthentication      ErrorType = "authentication_error"
	ErrNotFound            ErrorType = "not_found_error"
	ErrAPI                 ErrorType = "api_error"
)

// NewConfigurationError creates a configuration error naming the missing setting.
func NewConfigurationError(message, param string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
		Param:   param,
	}
}

// NewHandshakeError wraps a connect failure.
func NewHandshakeError(message string, cause error) *Error {
	return &Error{
		Type:    ErrHandshake,
		Message: message,
		Cause:   cause,
	}
}

// NewToolCallValidationError creates a validation error for a tool parameter.
func NewToolCallValidationError(message, param string) *Error {
	return &Error{
		Type:    ErrToolCallValidation,
		Message: message,
		Param:   param,
	}
}

// NewToolCallRejectedError creates a rejection error with a machine-readable code.
func NewToolCallRejectedError(message, code string) *Error {
	return &Error{
		Type:    ErrToolCallRejected,
		Message: message,
		Code:    code,
	}
}

// NewTransportDisconnectError describes an unexpected remote close.
func NewTransportDisconnectError(message string, cause error) *Error {
	return &Error{
		Type:    ErrTransportDisconnect,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewNotFoundError creates a not found error for the named parameter.
func NewNotFoundError(message, param string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
		Param:   param,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsType reports whether err is (or wraps) a *Error of the given type.
func IsType(err error, typ ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == typ
}

// Message returns the human-readable part of err, dropping the type prefix
// for *Error values.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
