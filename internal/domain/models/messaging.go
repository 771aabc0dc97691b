// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "fmt"

// StorageEventSubjectPrefix is the NATS subject root for storage change events.
// Events are published on <prefix>.<collection>.<type>, for example
// lfx.meeting_scheduler.meetings.created.
const StorageEventSubjectPrefix = "lfx.meeting_scheduler"

// StorageEventSubject builds the subject a storage event is published on.
func StorageEventSubject(collection, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", StorageEventSubjectPrefix, collection, eventType)
}

// StorageEventMessage is the payload published for a storage event.
type StorageEventMessage struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Data       any    `json:"data,omitempty"`
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id,omitempty"`
}
