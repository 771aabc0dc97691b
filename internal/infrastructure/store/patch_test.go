// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

func TestApplyPatch(t *testing.T) {
	base := func() *testRecord {
		return &testRecord{
			ID:        "a",
			Name:      "alpha",
			Priority:  2,
			CreatedAt: day(3),
			Details:   testDetails{Room: "north", Floor: 1},
			Tags:      []string{"x"},
		}
	}

	tests := []struct {
		name    string
		patch   domain.Patch
		check   func(t *testing.T, got *testRecord)
		wantErr bool
	}{
		{
			name:  "empty patch returns a copy",
			patch: domain.Patch{},
			check: func(t *testing.T, got *testRecord) {
				assert.Equal(t, base(), got)
			},
		},
		{
			name:  "top-level fields",
			patch: domain.Patch{"name": "beta", "active": true},
			check: func(t *testing.T, got *testRecord) {
				assert.Equal(t, "beta", got.Name)
				assert.True(t, got.Active)
				assert.Equal(t, 2, got.Priority)
			},
		},
		{
			name:  "json numbers decode into ints",
			patch: domain.Patch{"priority": float64(8)},
			check: func(t *testing.T, got *testRecord) {
				assert.Equal(t, 8, got.Priority)
			},
		},
		{
			name:  "nested objects merge",
			patch: domain.Patch{"details": map[string]any{"room": "west"}},
			check: func(t *testing.T, got *testRecord) {
				assert.Equal(t, testDetails{Room: "west", Floor: 1}, got.Details)
			},
		},
		{
			name:  "timestamps parse",
			patch: domain.Patch{"createdAt": "2025-01-02T03:04:05Z"},
			check: func(t *testing.T, got *testRecord) {
				assert.True(t, got.CreatedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
			},
		},
		{
			name:  "slices replace",
			patch: domain.Patch{"tags": []any{"y", "z"}},
			check: func(t *testing.T, got *testRecord) {
				assert.Equal(t, []string{"y", "z"}, got.Tags)
			},
		},
		{
			name:  "null resets a field",
			patch: domain.Patch{"tags": nil},
			check: func(t *testing.T, got *testRecord) {
				assert.Nil(t, got.Tags)
			},
		},
		{
			name:  "shorter slices truncate",
			patch: domain.Patch{"tags": []any{}},
			check: func(t *testing.T, got *testRecord) {
				assert.Empty(t, got.Tags)
			},
		},
		{name: "id is immutable", patch: domain.Patch{"id": "b"}, wantErr: true},
		{name: "unknown field", patch: domain.Patch{"colour": "red"}, wantErr: true},
		{name: "unknown nested field", patch: domain.Patch{"details": map[string]any{"wing": "b"}}, wantErr: true},
		{name: "wrong type", patch: domain.Patch{"active": "yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := base()
			got, err := domain.ApplyPatch(original, tt.patch)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", got.ID)
			assert.Equal(t, base(), original, "the input record must not change")
			tt.check(t, got)
		})
	}
}
