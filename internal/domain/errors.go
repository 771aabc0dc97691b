// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the semantic category of an error
type ErrorType int

const (
	ErrorTypeValidation  ErrorType = iota // Input validation errors (400 Bad Request)
	ErrorTypeNotFound                     // Resource not found errors (404 Not Found)
	ErrorTypeConflict                     // Resource conflict errors (409 Conflict)
	ErrorTypeInternal                     // Internal server errors (500 Internal Server Error)
	ErrorTypeUnavailable                  // Service unavailable errors (503 Service Unavailable)
)

// String returns a short name used in logs.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// DomainError represents an error with semantic type information
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error // underlying error for wrapping
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Storage error codes carried by [StorageError].
const (
	StorageCodeQuotaExceeded = "QUOTA_EXCEEDED"
	StorageCodeReadFailed    = "READ_FAILED"
	StorageCodeWriteFailed   = "WRITE_FAILED"
	StorageCodeEncoding      = "ENCODING_FAILED"
	StorageCodeUnavailable   = "UNAVAILABLE"
	StorageCodeConflict      = "CONCURRENT_MODIFICATION"
)

// StorageError is a backend failure annotated with the backend and the
// adapter operation that failed.
type StorageError struct {
	Backend   Backend
	Operation string
	Code      string
	Err       error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage %s failed on %s backend", e.Operation, e.Backend)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a [StorageError].
func NewStorageError(backend Backend, operation, code string, err error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Code: code, Err: err}
}

// ValidationErrors is the collected list of human-readable validation failures.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return strings.Join(v, "; ")
}

// GetErrorType returns the semantic type of an error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		switch storageErr.Code {
		case StorageCodeUnavailable:
			return ErrorTypeUnavailable
		case StorageCodeConflict:
			return ErrorTypeConflict
		}
		return ErrorTypeInternal
	}
	return ErrorTypeInternal // default fallback
}

// IsBackendFailure reports whether err is a backend or connection failure
// that may succeed against a different backend.
func IsBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorType(err) {
	case ErrorTypeInternal, ErrorTypeUnavailable:
		return true
	}
	return false
}

// ValidationMessages returns the collected validation messages carried by err.
func ValidationMessages(err error) []string {
	var list ValidationErrors
	if errors.As(err, &list) {
		return list
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Type == ErrorTypeValidation {
		return []string{domainErr.Message}
	}
	return nil
}

// Error constructors for different types
func NewValidationError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeValidation, Message: message, Err: errors.Join(err...)}
}

// NewValidationErrors builds a validation error out of a list of messages.
func NewValidationErrors(message string, messages []string) *DomainError {
	return &DomainError{Type: ErrorTypeValidation, Message: message, Err: ValidationErrors(messages)}
}

func NewNotFoundError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeNotFound, Message: message, Err: errors.Join(err...)}
}

func NewConflictError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeConflict, Message: message, Err: errors.Join(err...)}
}

func NewInternalError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeInternal, Message: message, Err: errors.Join(err...)}
}

func NewUnavailableError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnavailable, Message: message, Err: errors.Join(err...)}
}

// ErrServiceUnavailable is returned by services whose dependencies are not wired.
var ErrServiceUnavailable = NewUnavailableError("service unavailable")
