// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Configuration bounds
const (
	// MinReminderHours is the shortest reminder lead time in hours
	MinReminderHours = 1

	// MaxReminderHours is the longest reminder lead time in hours
	MaxReminderHours = 168
)

// Storage health thresholds
const (
	// HealthLatencyThresholdMillis marks a storage health check as degraded
	HealthLatencyThresholdMillis = 1000
)
