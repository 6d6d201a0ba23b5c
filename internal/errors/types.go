// Package errors provides the structured error type shared by every
// blockfactory package.
//
// Errors fall into three families. Invariant errors are programming
// errors (an out-of-range index, switching to an element that does not
// exist) and are never recoverable. Validation errors come from the
// import boundary or from user input that the tool rejects, such as a
// duplicate category name. Config and IO errors come from the CLI
// surface. User-cancelled prompts are not errors at all.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInvariant  ErrorType = "invariant"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// FactoryError is a structured error type with context.
type FactoryError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *FactoryError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FactoryError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *FactoryError) Is(target error) bool {
	var t *FactoryError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FactoryError) WithContext(key string, value interface{}) *FactoryError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *FactoryError) WithComponent(component string) *FactoryError {
	e.Component = component

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInvariantError creates an invariant violation. These are programming
// errors and callers must not continue with the session state they saw.
func NewInvariantError(code, message string) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeInvariant,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe.Recoverable
	}

	return false
}

// IsInvariant reports whether err is a programming error.
func IsInvariant(err error) bool {
	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeInvariant
	}

	return false
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeValidation
	}

	return false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe.Code == code
	}

	return false
}

// AsFactoryError finds the first FactoryError in err's chain.
func AsFactoryError(err error) (*FactoryError, bool) {
	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var fe *FactoryError
	if !errors.As(err, &fe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch fe.Type {
	case ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Validation error occurred",
			"type", fe.Type,
			"code", fe.Code,
			"component", fe.Component)
	case ErrorTypeInvariant:
		h.logger.Error(ctx, err, "Invariant violated",
			"type", fe.Type,
			"code", fe.Code,
			"component", fe.Component)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", fe.Type,
			"code", fe.Code,
			"component", fe.Component)
	}
}

// Common error codes.
const (
	ErrCodeOutOfRange        = "ERR_OUT_OF_RANGE"
	ErrCodeUnknownElement    = "ERR_UNKNOWN_ELEMENT"
	ErrCodeDuplicateName     = "ERR_DUPLICATE_NAME"
	ErrCodeEmptyName         = "ERR_EMPTY_NAME"
	ErrCodeCustomTagTaken    = "ERR_CUSTOM_TAG_TAKEN"
	ErrCodeNotACategory      = "ERR_NOT_A_CATEGORY"
	ErrCodeUnknownBlock      = "ERR_UNKNOWN_BLOCK"
	ErrCodeMalformedDocument = "ERR_MALFORMED_DOCUMENT"
	ErrCodeUnknownStandard   = "ERR_UNKNOWN_STANDARD_CATEGORY"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInvalidOptions    = "ERR_INVALID_OPTIONS"
	ErrCodeInvalidMode       = "ERR_INVALID_MODE"
	ErrCodeInvalidTemplate   = "ERR_INVALID_TEMPLATE"
	ErrCodeInvalidColour     = "ERR_INVALID_COLOUR"
	ErrCodeProjectInvalid    = "ERR_PROJECT_INVALID"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError     = "ERR_INTERNAL"
	ErrCodePreviewDisposed   = "ERR_PREVIEW_DISPOSED"
	ErrCodePreviewModeChange = "ERR_PREVIEW_MODE_CHANGE"
	ErrCodeBadRequest        = "ERR_BAD_REQUEST"
)

// ErrOutOfRange creates an index invariant error.
func ErrOutOfRange(index, length int) *FactoryError {
	return NewInvariantError(
		ErrCodeOutOfRange,
		fmt.Sprintf("index %d out of range [0,%d)", index, length),
	).WithContext("index", index).WithContext("length", length)
}

// ErrUnknownElement creates an unknown element invariant error.
func ErrUnknownElement(id string) *FactoryError {
	return NewInvariantError(ErrCodeUnknownElement, "unknown element: "+id).
		WithContext("id", id)
}

// ErrDuplicateName creates a duplicate category name error.
func ErrDuplicateName(name string) *FactoryError {
	return NewValidationError(
		ErrCodeDuplicateName,
		"a category named "+name+" already exists",
	).WithContext("name", name)
}

// ErrEmptyName rejects a blank category name.
func ErrEmptyName() *FactoryError {
	return NewValidationError(ErrCodeEmptyName, "category name must not be empty")
}

// ErrCustomTagTaken reports that another category already carries tag.
func ErrCustomTagTaken(tag string) *FactoryError {
	return NewValidationError(
		ErrCodeCustomTagTaken,
		"a "+strings.ToLower(tag)+" category already exists",
	).WithContext("tag", tag)
}

// ErrNotACategory reports a category-only operation on another kind.
func ErrNotACategory(id string) *FactoryError {
	return NewValidationError(ErrCodeNotACategory, "element is not a category: "+id).
		WithContext("id", id)
}

// ErrMalformedDocument wraps a parse failure at the import boundary.
func ErrMalformedDocument(cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeValidation,
		Code:        ErrCodeMalformedDocument,
		Message:     "malformed document",
		Cause:       cause,
		Recoverable: true,
	}
}
