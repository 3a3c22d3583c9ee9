// Package poolerrors provides structured error handling for slotpool with
// error categorization, key-value context, and stack traces.
//
// # Overview
//
// The poolerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Retryability and timeout detection
//
// # Basic Usage
//
//	// Create a new error
//	err := poolerrors.New(poolerrors.ErrorTypeInvalidHandle, "slot identity out of range")
//
//	// Add context
//	err = err.WithDetail("identity", id).
//	         WithDetail("capacity", capacity)
//
//	// Wrap existing errors
//	if err := ctx.Err(); err != nil {
//	    return poolerrors.Wrap(err, poolerrors.ErrorTypeExhausted, "acquire canceled")
//	}
//
// # Error Types
//
// Errors are categorized by type, which drives retry decisions: an
// ErrorTypeExhausted error is a transient capacity-pressure signal and is
// retryable; every other type signals a caller bug or a terminal pool state
// and is not.
//
// # Timeout Semantics
//
// ErrorTypeExhausted errors report Timeout() == true so callers can treat
// pool exhaustion uniformly with net-style deadline errors.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for error handling
// strategies and monitoring.
type ErrorType string

const (
	// ErrorTypeInvalidCapacity represents pool construction with an unusable capacity or slot size
	ErrorTypeInvalidCapacity ErrorType = "invalid_capacity"
	// ErrorTypeExhausted represents an acquire that timed out waiting for a free slot
	ErrorTypeExhausted ErrorType = "exhausted"
	// ErrorTypeInvalidHandle represents a release of a handle the pool did not hand out
	ErrorTypeInvalidHandle ErrorType = "invalid_handle"
	// ErrorTypeConflict represents an operation rejected because of outstanding borrowers
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeClosed represents an operation against a closed pool
	ErrorTypeClosed ErrorType = "closed"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted message that
// includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the error represents a timed-out wait. Only
// ErrorTypeExhausted qualifies; this lets callers detect pool exhaustion via
// the same interface net.Error exposes for deadline expiry.
func (e *Error) Timeout() bool {
	return e.Type == ErrorTypeExhausted
}

// WithDetail adds a key-value detail to the error. This method can be chained
// for adding multiple details.
//
// Example:
//
//	err := poolerrors.New(poolerrors.ErrorTypeExhausted, "no slot available").
//	    WithDetail("timeout", timeout).
//	    WithDetail("capacity", capacity)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable based on its type. Pool
// exhaustion is a transient capacity-pressure signal; everything else is a
// caller bug or a terminal state and retrying cannot help.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeExhausted
}

// IsTimeout returns true if the error reports itself as a timed-out wait.
func IsTimeout(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Timeout()
}

// IsType checks if the error is of the given type.
//
// Example:
//
//	if poolerrors.IsType(err, poolerrors.ErrorTypeExhausted) {
//	    backoff()
//	    continue
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
