package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType classifies failures of the embedding pipeline and the request handlers.
type ErrorType string

const (
	ErrorTypeDatasetNotFound       ErrorType = "dataset_not_found"
	ErrorTypeDatasetMalformed      ErrorType = "dataset_malformed"
	ErrorTypeEmbeddingPrecondition ErrorType = "embedding_precondition"
	ErrorTypeNotReady              ErrorType = "not_ready"
	ErrorTypeImageNotFound         ErrorType = "image_not_found"
	ErrorTypeConfiguration         ErrorType = "configuration"
)

// Fatal reports whether an error of this type must abort process startup.
func (t ErrorType) Fatal() bool {
	switch t {
	case ErrorTypeDatasetNotFound, ErrorTypeDatasetMalformed, ErrorTypeEmbeddingPrecondition, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context.
// Returns nil when err is nil.
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TypeOf returns the type of the first StructuredError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type, true
	}
	return "", false
}

// IsType reports whether err's chain carries a StructuredError of the given type.
func IsType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// NewDatasetNotFound reports a dataset bundle path that does not exist.
func NewDatasetNotFound(path string) *StructuredError {
	return New(ErrorTypeDatasetNotFound, "load_dataset", "dataset bundle not found").
		WithContext("path", path)
}

// WrapDatasetMalformed reports a bundle that cannot be decoded into features, labels and image paths.
func WrapDatasetMalformed(err error, path, message string) *StructuredError {
	se := Wrap(err, ErrorTypeDatasetMalformed, "load_dataset", message)
	if se == nil {
		se = New(ErrorTypeDatasetMalformed, "load_dataset", message)
	}
	return se.WithContext("path", path)
}

// NewEmbeddingPrecondition reports input the projector cannot embed.
func NewEmbeddingPrecondition(message string) *StructuredError {
	return New(ErrorTypeEmbeddingPrecondition, "project", message)
}

// NewNotReady reports a read of pipeline output before it was published.
func NewNotReady(operation string) *StructuredError {
	return New(ErrorTypeNotReady, operation, "embedding metadata is not ready")
}

// NewImageNotFound reports an image token that does not resolve to a regular file.
func NewImageNotFound(cause error) *StructuredError {
	if cause == nil {
		return New(ErrorTypeImageNotFound, "resolve_image", "image not found")
	}
	return Wrap(cause, ErrorTypeImageNotFound, "resolve_image", "image not found")
}

// WrapConfigurationError wraps an error as a configuration error
func WrapConfigurationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeConfiguration, operation, message)
}
