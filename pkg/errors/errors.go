// Package errors provides structured error handling for recordflow.
//
// Errors carry a Type that places them in the framework's taxonomy:
//
//   - validation: a Field, Record or property value failed a check. Validity
//     checks themselves never return errors; this type is used when a caller
//     asks for a diagnostic (Record.Validate) or a serializer refuses data.
//   - coercion: a typed accessor could not convert the underlying value.
//   - resolution: a controller service could not be instantiated or initialized.
//   - initialization: returned by a controller service's one-time hook.
//   - structural: misuse of a component (mutating a finalized context) or a
//     cyclic nested-record structure.
//
// Basic usage:
//
//	err := errors.New(errors.ErrorTypeCoercion, "cannot coerce property to integer").
//	    WithDetail("property", "record.ttl").
//	    WithDetail("value", raw)
//
//	if errors.IsType(err, errors.ErrorTypeCoercion) {
//	    // recover locally
//	}
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents value-level validation failures
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeCoercion represents failed typed access to a value
	ErrorTypeCoercion ErrorType = "coercion"
	// ErrorTypeResolution represents a controller service that could not be resolved
	ErrorTypeResolution ErrorType = "resolution"
	// ErrorTypeInitialization represents a failed controller service initialization hook
	ErrorTypeInitialization ErrorType = "initialization"
	// ErrorTypeStructural represents misuse of a component or a cyclic structure
	ErrorTypeStructural ErrorType = "structural"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data encoding and decoding errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
// Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
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

// IsType checks if the outermost structured error in the chain has the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// HasType reports whether any structured error in the chain has the given type
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// Is and As are re-exported so callers need a single errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Join aggregates errors, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// captureStack captures the current call stack
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
