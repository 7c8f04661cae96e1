package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the state engine.
type ErrorCode string

// Store error codes
const (
	ErrValidation       ErrorCode = "VALIDATION"
	ErrEntityNotFound   ErrorCode = "ENTITY_NOT_FOUND"
	ErrLowConfidence    ErrorCode = "LOW_CONFIDENCE_REJECTION"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrLockTimeout      ErrorCode = "LOCK_TIMEOUT"
	ErrGateUnavailable  ErrorCode = "GATE_UNAVAILABLE"
	ErrStoreClosed      ErrorCode = "STORE_CLOSED"
)

// Supervisor error codes
const (
	ErrConvergenceExhausted ErrorCode = "CONVERGENCE_EXHAUSTED"
	ErrInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCollaboratorFailed   ErrorCode = "COLLABORATOR_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	EntityID  string    `json:"entity_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithEntityID sets the entity id the error relates to.
func (e *Error) WithEntityID(id string) *Error {
	e.EntityID = id
	return e
}

// IsRetryable checks if an error is retryable.
// LOW_CONFIDENCE_REJECTION 和 VALIDATION 永不重试：是载荷本身错误，而非传输层。
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode 判断 err 是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
