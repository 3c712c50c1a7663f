package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the failure classes an extraction run distinguishes
type ErrorType string

const (
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeTransport ErrorType = "transport"
	ErrorTypeFatal     ErrorType = "fatal"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a typed failure carrying the operation that produced it
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s error in %s: %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

// NotFound reports that a target element or record does not exist
func NotFound(op, message string) *Error {
	return New(ErrorTypeNotFound, op, message)
}

// Timeout reports that an operation exceeded its bound
func Timeout(op string, err error) *Error {
	return Wrap(ErrorTypeTimeout, op, err)
}

// Transport reports that the agent channel or page context failed
func Transport(op string, err error) *Error {
	return Wrap(ErrorTypeTransport, op, err)
}

// Fatal reports a failure that ends the run
func Fatal(op string, err error) *Error {
	return Wrap(ErrorTypeFatal, op, err)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown if it is untyped
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsNotFound checks if err is a not-found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsTimeout checks if err is a timeout error
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsTransport checks if err is a transport error
func IsTransport(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// IsFatal checks if err is a fatal error
func IsFatal(err error) bool {
	return TypeOf(err) == ErrorTypeFatal
}

// IsRetryable checks if an error type may succeed on a second attempt.
// Only transport failures qualify; they are recovered by reinstalling the agent.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport:
		return true
	case ErrorTypeNotFound, ErrorTypeTimeout, ErrorTypeFatal:
		return false
	default:
		return false
	}
}
