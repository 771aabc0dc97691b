// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"
	"time"
)

// Backend names a concrete storage implementation.
type Backend string

const (
	// BackendDurable persists each collection as one JSON array in an embedded SQLite file.
	BackendDurable Backend = "durable"
	// BackendMemory keeps each collection in a process-local map.
	BackendMemory Backend = "memory"
	// BackendNatsKV persists each collection in a NATS JetStream key-value bucket.
	BackendNatsKV Backend = "nats-kv"
	// BackendCloudDocument stores one document per record in MongoDB.
	BackendCloudDocument Backend = "cloud-document"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendDurable, BackendMemory, BackendNatsKV, BackendCloudDocument:
		return true
	}
	return false
}

// Logical collections managed by the scheduler.
const (
	CollectionMeetings       = "meetings"
	CollectionConfig         = "config"
	CollectionBlockedSlots   = "blocked_slots"
	CollectionEmailTemplates = "email_templates"
)

// Collections lists every logical collection in export order.
var Collections = []string{
	CollectionMeetings,
	CollectionConfig,
	CollectionBlockedSlots,
	CollectionEmailTemplates,
}

// Record is implemented by every persisted type. Implementations are pointer
// types so adapters can assign generated ids.
type Record interface {
	GetID() string
	SetID(id string)
}

// SortDirection is the ordering applied by [OrderBy].
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OrderBy sorts query results on a single JSON field.
type OrderBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Query filters, sorts and paginates a collection. Where keys are JSON field
// names; a slice value means set membership, anything else exact match.
// Limit and Offset apply after filtering and sorting; zero Limit means no limit.
type Query struct {
	Where   map[string]any `json:"where,omitempty"`
	OrderBy *OrderBy       `json:"orderBy,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
}

// Patch is a partial update keyed by JSON field names. Nested objects merge key-wise.
type Patch map[string]any

// Change is one element of a batch update.
type Change struct {
	ID    string `json:"id"`
	Patch Patch  `json:"patch"`
}

// EventType is the kind of mutation reported by a [StorageEvent].
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// StorageEvent is emitted by adapters after every successful mutation.
type StorageEvent struct {
	Type       EventType `json:"type"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventListener receives storage events for a collection.
type EventListener func(StorageEvent)

// Adapter is the backend-agnostic contract every storage implementation satisfies.
//
// Lookups of a missing id are not errors: GetByID and Update return the zero
// value of T, Delete returns false. Creating a duplicate id fails with a
// conflict error and backend failures are returned as [*StorageError].
type Adapter[T Record] interface {
	Collection() string
	Backend() Backend

	Create(ctx context.Context, item T) (T, error)
	GetByID(ctx context.Context, id string) (T, error)
	GetAll(ctx context.Context, query *Query) ([]T, error)
	Update(ctx context.Context, id string, patch Patch) (T, error)
	Delete(ctx context.Context, id string) (bool, error)

	CreateMany(ctx context.Context, items []T) ([]T, error)
	UpdateMany(ctx context.Context, changes []Change) ([]T, error)
	DeleteMany(ctx context.Context, ids []string) (bool, error)

	Find(ctx context.Context, query Query) ([]T, error)
	Count(ctx context.Context, query *Query) (int, error)
	Exists(ctx context.Context, id string) (bool, error)

	Clear(ctx context.Context) error
	Backup(ctx context.Context) ([]T, error)
	Restore(ctx context.Context, items []T) error

	// Subscribe registers listener for this collection and returns a function
	// that removes it.
	Subscribe(listener EventListener) (unsubscribe func())
}
