package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid workflow specification
	ErrCatExecution  ErrorCategory = "execution"  // Tool invocation failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Tool or run deadline elapsed
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Tool endpoint throttled the call
	ErrCatSkipped    ErrorCategory = "skipped"    // Not executed because an upstream tool failed
	ErrCatCancelled  ErrorCategory = "cancelled"  // Run cancelled by a caller
	ErrCatState      ErrorCategory = "state"      // Illegal state transition
	ErrCatNotFound   ErrorCategory = "not_found"  // Unknown run or tool
	ErrCatConflict   ErrorCategory = "conflict"   // Operation not valid for the run's current state
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes.
const (
	// Planning
	CodeInvalidDependency = "INVALID_DEPENDENCY"
	CodeCyclicDependency  = "CYCLIC_DEPENDENCY"
	CodeDuplicateTool     = "DUPLICATE_TOOL"
	CodeSelfDependency    = "SELF_DEPENDENCY"
	CodeUnknownToolType   = "UNKNOWN_TOOL_TYPE"
	CodeUnknownTool       = "UNKNOWN_TOOL"
	CodeInvalidSpec       = "INVALID_SPEC"

	// Execution
	CodeToolFailed     = "TOOL_FAILED"
	CodeToolTimeout    = "TOOL_TIMEOUT"
	CodeRunTimeout     = "RUN_TIMEOUT"
	CodeRunCancelled   = "RUN_CANCELLED"
	CodeUpstreamFailed = "UPSTREAM_FAILED"
	CodeInvalidState   = "INVALID_STATE"

	// Lookup
	CodeRunNotFound     = "RUN_NOT_FOUND"
	CodeRunFinished     = "RUN_FINISHED"
	CodeRunLimitReached = "RUN_LIMIT_REACHED"
)

// ErrPlanning creates a planning (validation) error. Planning errors are
// fatal: the run aborts before any tool executes.
func ErrPlanning(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrInvalidDependency reports a dependsOn entry that names no tool.
func ErrInvalidDependency(tool, dependency string) *DomainError {
	return ErrPlanning(CodeInvalidDependency,
		fmt.Sprintf("tool %q depends on unknown tool %q", tool, dependency)).
		WithDetail("tool", tool).
		WithDetail("dependency", dependency)
}

// ErrCyclicDependency reports a dependency cycle. The cycle is listed in
// traversal order with the first node repeated at the end.
func ErrCyclicDependency(cycle []string) *DomainError {
	msg := "tool dependency graph contains a cycle"
	if len(cycle) > 0 {
		msg += ": " + strings.Join(cycle, " -> ")
	}
	return ErrPlanning(CodeCyclicDependency, msg).WithDetail("cycle", cycle)
}

// ErrToolInvocation wraps a failure returned by a tool invoker.
func ErrToolInvocation(tool string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeToolFailed,
		Message:   fmt.Sprintf("tool %q failed", tool),
		Retryable: true,
		Cause:     cause,
	}
}

// ErrToolFatal wraps an invoker failure that must not be retried.
func ErrToolFatal(tool string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeToolFailed,
		Message:   fmt.Sprintf("tool %q failed permanently", tool),
		Retryable: false,
		Cause:     cause,
	}
}

// ErrTimeout creates a retryable timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeToolTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrRunTimeout is the cause attached to a run whose overall deadline elapsed.
func ErrRunTimeout() *DomainError {
	return &DomainError{
		Category: ErrCatTimeout,
		Code:     CodeRunTimeout,
		Message:  "workflow run timed out",
	}
}

// ErrCancelled is the cause attached to a run cancelled by a caller.
func ErrCancelled() *DomainError {
	return &DomainError{
		Category: ErrCatCancelled,
		Code:     CodeRunCancelled,
		Message:  "workflow run cancelled",
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrSkipped reports that a tool was not executed because ancestor failed.
// It is informational, not a failure of the tool itself.
func ErrSkipped(tool, ancestor string) *DomainError {
	return &DomainError{
		Category: ErrCatSkipped,
		Code:     CodeUpstreamFailed,
		Message:  fmt.Sprintf("tool %q skipped: upstream tool %q failed", tool, ancestor),
		Details: map[string]interface{}{
			"ancestor": ancestor,
		},
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeRunNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     code,
		Message:  message,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// CycleOf returns the cycle carried by a CYCLIC_DEPENDENCY error.
func CycleOf(err error) []string {
	var domErr *DomainError
	if !errors.As(err, &domErr) || domErr.Code != CodeCyclicDependency {
		return nil
	}
	cycle, _ := domErr.Details["cycle"].([]string)
	return cycle
}
