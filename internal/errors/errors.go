// Package errors implements the extraction pipeline's domain error taxonomy.
//
// Design pattern: factory functions per tag, same shape the worker used for
// its processing errors, generalized from a single ErrorCode enum into the
// seven-tag taxonomy the extraction core needs.
package errors

import (
	"fmt"
	"time"
)

// Tag is the stable error-taxonomy tag attached to every domain failure.
type Tag string

const (
	// Validation covers bad input or bad configuration. Recoverable at the API edge.
	Validation Tag = "Validation"
	// Parsing covers a format handler failing on content it should have understood.
	Parsing Tag = "Parsing"
	// OCR covers recognition failures in the OCR engine.
	OCR Tag = "OCR"
	// MissingDependency covers an optional capability that isn't available.
	MissingDependency Tag = "MissingDependency"
	// MemoryLimit covers the image preprocessor refusing due to size.
	MemoryLimit Tag = "MemoryLimit"
	// Device covers a requested compute device being unavailable.
	Device Tag = "Device"
	// System covers process-level failures that must bubble up unchanged:
	// cannot allocate, cannot spawn a subprocess, cannot read a mandatory file.
	System Tag = "System"
)

// httpStatus maps each tag to the status code a frontend should report.
var httpStatus = map[Tag]int{
	Validation:        400,
	Parsing:           422,
	OCR:               422,
	MissingDependency: 503,
	MemoryLimit:       507,
	Device:            500,
	System:            500,
}

// DomainError is a structured failure carrying a taxonomy tag, a human
// message, and a context map suitable for logging or for mapping to an HTTP
// status code in a frontend.
type DomainError struct {
	Tag       Tag
	Message   string
	Context   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code a frontend should map this error's tag to.
func (e *DomainError) HTTPStatus() int {
	if s, ok := httpStatus[e.Tag]; ok {
		return s
	}
	return 500
}

// ToMap flattens the error into a map suitable for metadata/logging storage.
func (e *DomainError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_type": string(e.Tag),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	for k, v := range e.Context {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}

func newError(tag Tag, message string, context map[string]interface{}, cause error) *DomainError {
	return &DomainError{
		Tag:       tag,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewValidationError builds a Validation-tagged error.
func NewValidationError(message string, context map[string]interface{}) *DomainError {
	return newError(Validation, message, context, nil)
}

// NewParsingError builds a Parsing-tagged error.
func NewParsingError(message string, context map[string]interface{}, cause error) *DomainError {
	return newError(Parsing, message, context, cause)
}

// NewOCRError builds an OCR-tagged error.
func NewOCRError(message string, context map[string]interface{}, cause error) *DomainError {
	return newError(OCR, message, context, cause)
}

// NewMissingDependencyError builds a MissingDependency-tagged error.
func NewMissingDependencyError(dependency string, cause error) *DomainError {
	return newError(MissingDependency, fmt.Sprintf("missing dependency: %s", dependency), map[string]interface{}{
		"dependency": dependency,
	}, cause)
}

// NewMemoryLimitError builds a MemoryLimit-tagged error.
func NewMemoryLimitError(message string, context map[string]interface{}) *DomainError {
	return newError(MemoryLimit, message, context, nil)
}

// NewDeviceError builds a Device-tagged error.
func NewDeviceError(message string, context map[string]interface{}) *DomainError {
	return newError(Device, message, context, nil)
}

// NewSystemError wraps a system-level failure that must bubble up unchanged.
func NewSystemError(message string, cause error) *DomainError {
	return newError(System, message, nil, cause)
}

// NewTimeoutError builds a Parsing-tagged error for an expired subprocess
// timeout (spec: "external subprocess calls... produce Parsing with context
// {timeout, command}").
func NewTimeoutError(command string, timeout time.Duration, cause error) *DomainError {
	return newError(Parsing, fmt.Sprintf("subprocess %q timed out after %v", command, timeout), map[string]interface{}{
		"timeout": timeout.String(),
		"command": command,
	}, cause)
}

// AsDomainError unwraps err into a *DomainError, the errors.As convention
// applied to this package's own error type so callers can branch on Tag
// without a type switch at every call site.
func AsDomainError(err error, target **DomainError) bool {
	for err != nil {
		if de, ok := err.(*DomainError); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsMustBubble reports whether a tag must always propagate rather than being
// suppressed by the Safe-Feature envelope: system exits, interrupts,
// out-of-memory, I/O errors, runtime errors, missing dependencies.
func IsMustBubble(tag Tag) bool {
	switch tag {
	case System, MissingDependency:
		return true
	default:
		return false
	}
}
