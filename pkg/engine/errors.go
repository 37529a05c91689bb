package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a run failure.
type ErrorClass string

const (
	// ErrorClassInvocation indicates an external tool failed or did not
	// produce its expected output.
	ErrorClassInvocation ErrorClass = "invocation"

	// ErrorClassInput indicates a missing or invalid user-supplied input.
	// It is reported before any tool is invoked.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassInterrupted indicates the run was cancelled between steps.
	ErrorClassInterrupted ErrorClass = "interrupted"

	// ErrorClassCleanup indicates teardown failed. It is never returned as
	// a run's error, only reported.
	ErrorClassCleanup ErrorClass = "cleanup"

	// ErrorClassInternal indicates a failure of skyloop's own bookkeeping,
	// such as writing a configuration document.
	ErrorClassInternal ErrorClass = "internal"
)

// LoopError is a classified run failure.
// nolint:revive // LoopError is named to distinguish it from tool errors
type LoopError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Iteration is the 1-based iteration the failure belongs to. Zero means
	// the failure happened outside the iterations.
	Iteration int `json:"iteration,omitempty"`

	// Tool is the external tool involved, if any.
	Tool string `json:"tool,omitempty"`

	// Diagnostics is the tool's captured diagnostic output.
	Diagnostics string `json:"diagnostics,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	msg := e.Message
	if e.Iteration > 0 {
		msg = fmt.Sprintf("iteration %d: %s", e.Iteration, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Err
}

// Is matches another *LoopError with the same class and code.
func (e *LoopError) Is(target error) bool {
	t, ok := target.(*LoopError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewInvocationError creates a new invocation error.
func NewInvocationError(message string, err error) *LoopError {
	return &LoopError{Class: ErrorClassInvocation, Message: message, Err: err}
}

// NewInputError creates a new input error.
func NewInputError(message string, err error) *LoopError {
	return &LoopError{Class: ErrorClassInput, Message: message, Err: err}
}

// NewInterruptedError creates a new interruption error.
func NewInterruptedError(message string, err error) *LoopError {
	return &LoopError{Class: ErrorClassInterrupted, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *LoopError {
	return &LoopError{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithCode adds an error code.
func (e *LoopError) WithCode(code string) *LoopError {
	e.Code = code
	return e
}

// WithIteration sets the iteration the error belongs to.
func (e *LoopError) WithIteration(i int) *LoopError {
	e.Iteration = i
	return e
}

// WithTool sets the tool involved.
func (e *LoopError) WithTool(tool string) *LoopError {
	e.Tool = tool
	return e
}

// WithDiagnostics attaches captured tool output.
func (e *LoopError) WithDiagnostics(text string) *LoopError {
	e.Diagnostics = text
	return e
}

// IsInvocation returns true if the error is an invocation failure.
func IsInvocation(err error) bool {
	return classOf(err) == ErrorClassInvocation
}

// IsInput returns true if the error is an input failure.
func IsInput(err error) bool {
	return classOf(err) == ErrorClassInput
}

// IsInterrupted returns true if the run was interrupted.
func IsInterrupted(err error) bool {
	return classOf(err) == ErrorClassInterrupted
}

// ClassOf returns the class of err, or "" when err is not a *LoopError.
func ClassOf(err error) ErrorClass {
	return classOf(err)
}

func classOf(err error) ErrorClass {
	var e *LoopError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeToolFailed     = "TOOL_FAILED"
	ErrCodeMissingOutput  = "MISSING_OUTPUT"
	ErrCodeMissingBundle  = "MISSING_BUNDLE"
	ErrCodeIntrospection  = "INTROSPECTION_FAILED"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeMissingInput   = "MISSING_INPUT"
	ErrCodeDocument       = "DOCUMENT_FAILED"
	ErrCodeRelocation     = "RELOCATION_FAILED"
	ErrCodeWorkspace      = "WORKSPACE_FAILED"
	ErrCodeDiagnosticCube = "DIAGNOSTIC_CUBE_FAILED"
)
