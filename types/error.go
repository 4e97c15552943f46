package types

import "fmt"

// ErrorCode represents a unified error code across the execution core.
type ErrorCode string

const (
	ErrMissingCode         ErrorCode = "MISSING_CODE"
	ErrInputValidation     ErrorCode = "INPUT_VALIDATION_ERROR"
	ErrOutputValidation    ErrorCode = "OUTPUT_VALIDATION_ERROR"
	ErrUnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	ErrUnsupportedRuntime  ErrorCode = "UNSUPPORTED_RUNTIME"
	ErrNotAvailable        ErrorCode = "NOT_AVAILABLE"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrExecution           ErrorCode = "EXECUTION_ERROR"
	ErrInstall             ErrorCode = "INSTALL_ERROR"
)

// ExecutionError is a structured failure with a code from the closed taxonomy.
// It implements the error interface so backends can return it directly.
type ExecutionError struct {
	Message string         `json:"message"`
	Code    ErrorCode      `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewError creates a new ExecutionError with the given code and message.
func NewError(code ErrorCode, message string) *ExecutionError {
	return &ExecutionError{Code: code, Message: message}
}

// NewErrorf creates a new ExecutionError with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *ExecutionError {
	return &ExecutionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches one key/value pair to the error details.
func (e *ExecutionError) WithDetail(key string, value any) *ExecutionError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails replaces the error details map.
func (e *ExecutionError) WithDetails(details map[string]any) *ExecutionError {
	e.Details = details
	return e
}

// AsExecutionError converts an arbitrary error into an *ExecutionError.
// Unknown errors are wrapped as EXECUTION_ERROR with the original message
// preserved in details, so no failure path loses information.
func AsExecutionError(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	if e, ok := err.(*ExecutionError); ok {
		return e
	}
	return NewError(ErrExecution, err.Error()).WithDetail("cause", err.Error())
}

// GetErrorCode extracts the error code from an error, or "" for foreign errors.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*ExecutionError); ok {
		return e.Code
	}
	return ""
}
