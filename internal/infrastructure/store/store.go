// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package store implements the storage adapter contract over each supported backend.
package store

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// tracerName is the instrumentation name for the store package.
const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/store"

// KeyPrefix namespaces the key each collection is stored under in key/value backends.
const KeyPrefix = "meeting_scheduler_"

// CollectionKey is the key/value key holding collection's records.
func CollectionKey(collection string) string {
	return KeyPrefix + collection
}

// errSkipWrite aborts a read-modify-write without persisting anything.
var errSkipWrite = errors.New("store: nothing to write")

// GenerateID builds a record id for collection.
func GenerateID(collection string) string {
	return collection + "_" + uuid.NewString()
}

func isNil[T domain.Record](v T) bool {
	rv := reflect.ValueOf(any(v))
	return !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil())
}

// cloneRecord returns a deep copy of item so callers never share memory with
// the backing store.
func cloneRecord[T domain.Record](item T) (T, error) {
	var out T
	data, err := json.Marshal(item)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func decodeRecords[T domain.Record](data []byte) ([]T, error) {
	if len(data) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func indexOf[T domain.Record](items []T, id string) int {
	for i, item := range items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

func duplicateError(collection, id string) error {
	return domain.NewConflictError("record with id '" + id + "' already exists in " + collection)
}

// asStorageError keeps domain and storage errors intact and wraps anything
// else as a StorageError for backend and op.
func asStorageError(backend domain.Backend, op, code string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StorageError
	if errors.As(err, &se) {
		return err
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.NewStorageError(backend, op, code, err)
}
