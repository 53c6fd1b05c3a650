package dispatch

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeToolNotFound  = "TOOL_NOT_FOUND"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeTimeout       = "EXECUTION_TIMEOUT"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeKnowledgeBase = "KNOWLEDGE_BASE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// DispatchError is the error type returned by the agent and its components.
type DispatchError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeTimeout)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "plan", "tool_calls")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DispatchError.
func NewError(code, stage, message string, cause error) *DispatchError {
	return &DispatchError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *DispatchError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewToolNotFoundError(stage string, tool ToolName) *DispatchError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", tool), nil)
}

func NewToolExecutionError(stage string, tool ToolName, cause error) *DispatchError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", tool), cause)
}

func NewTimeoutError(stage string, cause error) *DispatchError {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewCancelledError(stage string, cause error) *DispatchError {
	return NewError(ErrCodeCancelled, stage, "execution cancelled", cause)
}

func NewConfigurationError(message string, cause error) *DispatchError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewKnowledgeBaseError(message string, cause error) *DispatchError {
	return NewError(ErrCodeKnowledgeBase, "knowledge_base", message, cause)
}

func NewInternalError(stage, message string, cause error) *DispatchError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// AsDispatchError returns the first DispatchError in err's chain.
func AsDispatchError(err error) (*DispatchError, bool) {
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}

// IsDispatchError reports whether err's chain contains a DispatchError.
func IsDispatchError(err error) bool {
	_, ok := AsDispatchError(err)
	return ok
}

// HasCode reports whether any DispatchError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		dErr, ok := AsDispatchError(err)
		if !ok {
			return false
		}
		if dErr.Code == code {
			return true
		}
		err = dErr.Cause
	}
	return false
}

// IsTimeout reports whether err is a tool timeout.
func IsTimeout(err error) bool {
	return HasCode(err, ErrCodeTimeout)
}

// IsPermanent reports whether retrying err cannot succeed. Validation
// failures are deterministic; everything else is treated as transient.
func IsPermanent(err error) bool {
	return HasCode(err, ErrCodeValidation)
}
