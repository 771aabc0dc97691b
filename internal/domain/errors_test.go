// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"validation", NewValidationError("bad input"), ErrorTypeValidation},
		{"not found", NewNotFoundError("missing"), ErrorTypeNotFound},
		{"conflict", NewConflictError("taken"), ErrorTypeConflict},
		{"internal", NewInternalError("boom"), ErrorTypeInternal},
		{"unavailable", NewUnavailableError("down"), ErrorTypeUnavailable},
		{"wrapped domain error", fmt.Errorf("outer: %w", NewConflictError("taken")), ErrorTypeConflict},
		{"plain error", errors.New("plain"), ErrorTypeInternal},
		{"storage write failure", NewStorageError(BackendDurable, "create", StorageCodeWriteFailed, nil), ErrorTypeInternal},
		{"storage quota", NewStorageError(BackendDurable, "create", StorageCodeQuotaExceeded, nil), ErrorTypeInternal},
		{"storage unavailable", NewStorageError(BackendNatsKV, "getAll", StorageCodeUnavailable, nil), ErrorTypeUnavailable},
		{"storage concurrent modification", NewStorageError(BackendNatsKV, "update", StorageCodeConflict, nil), ErrorTypeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorType(tt.err))
		})
	}
}

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternalError("failed to save", cause)

	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewValidationError("name is required")
	assert.Equal(t, "name is required", bare.Error())
	assert.NoError(t, bare.Unwrap())
}

func TestStorageError(t *testing.T) {
	cause := errors.New("value too large")
	err := NewStorageError(BackendDurable, "createMany", StorageCodeQuotaExceeded, cause)

	assert.Equal(t, "storage createMany failed on durable backend (QUOTA_EXCEEDED): value too large", err.Error())
	assert.ErrorIs(t, err, cause)

	var storageErr *StorageError
	wrapped := fmt.Errorf("meetings: %w", err)
	assert.True(t, errors.As(wrapped, &storageErr))
	assert.Equal(t, BackendDurable, storageErr.Backend)
	assert.Equal(t, "createMany", storageErr.Operation)
}

func TestIsBackendFailure(t *testing.T) {
	assert.False(t, IsBackendFailure(nil))
	assert.False(t, IsBackendFailure(NewValidationError("bad")))
	assert.False(t, IsBackendFailure(NewConflictError("dup")))
	assert.False(t, IsBackendFailure(NewNotFoundError("gone")))
	assert.True(t, IsBackendFailure(NewInternalError("boom")))
	assert.True(t, IsBackendFailure(NewUnavailableError("down")))
	assert.True(t, IsBackendFailure(NewStorageError(BackendMemory, "update", StorageCodeWriteFailed, nil)))
}

func TestValidationMessages(t *testing.T) {
	err := NewValidationErrors("invalid configuration", []string{
		"Start time must be in HH:mm format",
		"At least one working day is required",
	})

	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
	assert.Equal(t, []string{
		"Start time must be in HH:mm format",
		"At least one working day is required",
	}, ValidationMessages(err))
	assert.Contains(t, err.Error(), "Start time must be in HH:mm format; At least one working day is required")

	assert.Equal(t, []string{"name is required"}, ValidationMessages(NewValidationError("name is required")))
	assert.Nil(t, ValidationMessages(NewInternalError("boom")))
}
