// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// ExportVersion is written into export metadata.
const ExportVersion = "1.0.0"

// StorageData is the backup payload covering every collection.
type StorageData struct {
	Meetings       []*MeetingBooking  `json:"meetings"`
	Config         *MeetingConfig     `json:"config"`
	BlockedSlots   []*BlockedTimeSlot `json:"blockedSlots"`
	EmailTemplates []*EmailTemplate   `json:"emailTemplates"`
	Metadata       ExportMetadata     `json:"metadata"`
}

// ExportMetadata describes where and when an export was produced.
type ExportMetadata struct {
	ExportedAt time.Time `json:"exportedAt"`
	Version    string    `json:"version"`
	Backend    string    `json:"backend"`
}

// HealthStatus is the coarse state reported by a health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// StorageHealth is the result of a storage health check.
type StorageHealth struct {
	Status    HealthStatus `json:"status"`
	Backend   string       `json:"backend"`
	Latency   int64        `json:"latency"`
	Errors    []string     `json:"errors,omitempty"`
	Fallback  bool         `json:"fallback"`
	CheckedAt time.Time    `json:"checkedAt"`
}

// BackendInfo describes the active storage backend.
type BackendInfo struct {
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Fallback     bool     `json:"fallback"`
}
