package backup

import (
	"errors"
	"fmt"
)

// PipelineError represents errors that occur during pipeline operations
type PipelineError struct {
	Type    PipelineErrorType      `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// PipelineErrorType represents different types of pipeline errors
type PipelineErrorType string

const (
	ErrorTypeConfiguration PipelineErrorType = "CONFIGURATION_ERROR"
	ErrorTypeCommand       PipelineErrorType = "COMMAND_ERROR"
	ErrorTypeFormat        PipelineErrorType = "FORMAT_ERROR"
	ErrorTypeNotFound      PipelineErrorType = "NOT_FOUND_ERROR"
	ErrorTypeEncryption    PipelineErrorType = "ENCRYPTION_ERROR"
	ErrorTypeDelivery      PipelineErrorType = "DELIVERY_ERROR"
	ErrorTypeStorage       PipelineErrorType = "STORAGE_ERROR"
	ErrorTypeValidation    PipelineErrorType = "VALIDATION_ERROR"
)

// NewPipelineError creates a new PipelineError
func NewPipelineError(errorType PipelineErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewConfigurationError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeConfiguration, message, cause)
}

func NewCommandError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeCommand, message, cause)
}

func NewFormatError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeFormat, message, cause)
}

func NewNotFoundError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeNotFound, message, cause)
}

func NewEncryptionError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeEncryption, message, cause)
}

func NewDeliveryError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeDelivery, message, cause)
}

func NewStorageError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeStorage, message, cause)
}

func NewValidationError(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeValidation, message, cause)
}

// errorType extracts the pipeline error type from an error chain
func errorType(err error) (PipelineErrorType, bool) {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type, true
	}
	return "", false
}

// IsConfigurationError reports whether err is a configuration error
func IsConfigurationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeConfiguration
}

// IsFormatError reports whether err is a format error, so callers can
// distinguish "bad input" from "tool crashed"
func IsFormatError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeFormat
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeNotFound
}

// IsDeliveryError reports whether err is a recoverable delivery error
func IsDeliveryError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeDelivery
}

// IsRecoverable determines if the pipeline may proceed after the error.
// Delivery failures never roll back an already-created artifact.
func IsRecoverable(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrorTypeDelivery
}
