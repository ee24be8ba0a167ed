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
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeRuntime    ErrorType = "runtime"
	ErrorTypeInternal   ErrorType = "internal"
)

// HydrateError is a structured error type with context.
type HydrateError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *HydrateError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *HydrateError) Unwrap() error {
	return e.Cause
}

// Is matches another HydrateError with the same type and code.
func (e *HydrateError) Is(target error) bool {
	var t *HydrateError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *HydrateError) WithContext(key string, value interface{}) *HydrateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile adds the file the error relates to.
func (e *HydrateError) WithFile(filePath string) *HydrateError {
	e.FilePath = filePath

	return e
}

// WithComponent adds component context.
func (e *HydrateError) WithComponent(component string) *HydrateError {
	e.Component = component

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *HydrateError {
	return &HydrateError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *HydrateError {
	return &HydrateError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *HydrateError {
	return &HydrateError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *HydrateError {
	return &HydrateError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewRuntimeError creates an error raised while activating components.
func NewRuntimeError(code, message string, cause error) *HydrateError {
	return &HydrateError{
		Type:    ErrorTypeRuntime,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *HydrateError {
	return &HydrateError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var he *HydrateError
	if errors.As(err, &he) {
		return he.Recoverable
	}

	return false
}

// HasCode reports whether err is a HydrateError carrying code.
func HasCode(err error, code string) bool {
	var he *HydrateError
	if errors.As(err, &he) {
		return he.Code == code
	}

	return false
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

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var he *HydrateError
	if !errors.As(err, &he) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch he.Type {
	case ErrorTypeBuild, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Build error occurred",
			"type", he.Type,
			"code", he.Code,
			"component", he.Component,
			"file", he.FilePath)
	case ErrorTypeRuntime:
		h.logger.Error(ctx, err, "Component activation failed",
			"code", he.Code,
			"component", he.Component)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", he.Type,
			"code", he.Code,
			"component", he.Component)
	}
}

// Common error codes.
const (
	ErrCodeInvalidPath           = "ERR_INVALID_PATH"
	ErrCodeBuildFailed           = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid         = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound          = "ERR_FILE_NOT_FOUND"
	ErrCodePageParse             = "ERR_PAGE_PARSE"
	ErrCodePageWrite             = "ERR_PAGE_WRITE"
	ErrCodeStylePipeline         = "ERR_STYLE_PIPELINE"
	ErrCodeDuplicateRegistration = "ERR_DUPLICATE_REGISTRATION"
	ErrCodeInvalidModule         = "ERR_INVALID_MODULE"
	ErrCodeComponentLoad         = "ERR_COMPONENT_LOAD"
	ErrCodeComponentDefine       = "ERR_COMPONENT_DEFINE"
	ErrCodeInternalError         = "ERR_INTERNAL"
)
