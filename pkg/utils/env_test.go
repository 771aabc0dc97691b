// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirstSet(t *testing.T) {
	assert.Equal(t, "durable", FirstSet("", "durable", "memory"))
	assert.Equal(t, "", FirstSet[string]())
	assert.Equal(t, 1025, FirstSet(0, 1025))
	assert.Equal(t, 30*time.Minute, FirstSet(0, 30*time.Minute, time.Hour))
}

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		expected string
	}{
		{name: "unset uses fallback", expected: "meeting_scheduler"},
		{name: "blank uses fallback", value: "   ", set: true, expected: "meeting_scheduler"},
		{name: "value is trimmed", value: " scheduler_kv \n", set: true, expected: "scheduler_kv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("NATS_KV_BUCKET", tt.value)
			} else {
				t.Setenv("NATS_KV_BUCKET", "")
			}
			assert.Equal(t, tt.expected, Getenv("NATS_KV_BUCKET", "meeting_scheduler"))
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{name: "empty uses fallback", value: "", expected: 1025},
		{name: "number", value: "2525", expected: 2525},
		{name: "padded number", value: " 587 ", expected: 587},
		{name: "malformed uses fallback", value: "smtp", expected: 1025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMTP_PORT", tt.value)
			assert.Equal(t, tt.expected, GetenvInt("SMTP_PORT", 1025))
		})
	}
}
