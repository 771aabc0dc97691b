// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// ValueStore is a byte-level key/value backend that can run an atomic
// read-modify-write on one key.
type ValueStore interface {
	Backend() domain.Backend
	// Load returns the value stored under key, or nil when it is missing.
	Load(ctx context.Context, key string) ([]byte, error)
	// Modify passes the current value (nil when missing) to fn and stores
	// what it returns. fn may run more than once and must not have side
	// effects outside of its return values.
	Modify(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	Ping(ctx context.Context) error
	Close() error
}

// KeyValueAdapter stores a whole collection as one JSON array under a single
// key of a ValueStore. Every operation reads the array and mutations rewrite it.
type KeyValueAdapter[T domain.Record] struct {
	collection string
	key        string
	store      ValueStore
	hub        *eventHub
}

// NewKeyValueAdapter creates an adapter for collection over store.
func NewKeyValueAdapter[T domain.Record](collection string, store ValueStore) *KeyValueAdapter[T] {
	return &KeyValueAdapter[T]{
		collection: collection,
		key:        CollectionKey(collection),
		store:      store,
		hub:        newEventHub(collection),
	}
}

func (a *KeyValueAdapter[T]) Collection() string      { return a.collection }
func (a *KeyValueAdapter[T]) Backend() domain.Backend { return a.store.Backend() }

func (a *KeyValueAdapter[T]) fail(ctx context.Context, op, code string, err error) error {
	err = asStorageError(a.Backend(), op, code, err)
	if domain.IsBackendFailure(err) {
		slog.With(logging.StorageAttrs(string(a.Backend()), a.collection, op)...).
			ErrorContext(ctx, "storage operation failed", logging.ErrKey, err)
	}
	return err
}

func (a *KeyValueAdapter[T]) read(ctx context.Context, op string) ([]T, error) {
	data, err := a.store.Load(ctx, a.key)
	if err != nil {
		return nil, a.fail(ctx, op, domain.StorageCodeReadFailed, err)
	}
	items, err := decodeRecords[T](data)
	if err != nil {
		return nil, a.fail(ctx, op, domain.StorageCodeEncoding, err)
	}
	return items, nil
}

// mutate runs fn over the current records and persists the result. fn
// returning errSkipWrite leaves the stored value untouched.
func (a *KeyValueAdapter[T]) mutate(ctx context.Context, op string, fn func(items []T) ([]T, error)) error {
	err := a.store.Modify(ctx, a.key, func(current []byte) ([]byte, error) {
		items, err := decodeRecords[T](current)
		if err != nil {
			return nil, domain.NewStorageError(a.Backend(), op, domain.StorageCodeEncoding, err)
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, domain.NewStorageError(a.Backend(), op, domain.StorageCodeEncoding, err)
		}
		return data, nil
	})
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return a.fail(ctx, op, domain.StorageCodeWriteFailed, err)
	}
	return nil
}

func (a *KeyValueAdapter[T]) Create(ctx context.Context, item T) (T, error) {
	created, err := a.CreateMany(ctx, []T{item})
	if err != nil {
		var zero T
		return zero, err
	}
	return created[0], nil
}

func (a *KeyValueAdapter[T]) CreateMany(ctx context.Context, items []T) ([]T, error) {
	prepared := make([]T, 0, len(items))
	for _, item := range items {
		if isNil(item) {
			return nil, domain.NewValidationError("cannot create a nil record in " + a.collection)
		}
		c, err := cloneRecord(item)
		if err != nil {
			return nil, a.fail(ctx, "createMany", domain.StorageCodeEncoding, err)
		}
		if c.GetID() == "" {
			c.SetID(GenerateID(a.collection))
		}
		prepared = append(prepared, c)
	}

	err := a.mutate(ctx, "createMany", func(existing []T) ([]T, error) {
		seen := make(map[string]bool, len(existing)+len(prepared))
		for _, e := range existing {
			seen[e.GetID()] = true
		}
		for _, p := range prepared {
			if seen[p.GetID()] {
				return nil, duplicateError(a.collection, p.GetID())
			}
			seen[p.GetID()] = true
		}
		return append(existing, prepared...), nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range prepared {
		a.hub.emit(ctx, domain.EventCreated, p.GetID(), p)
	}
	return prepared, nil
}

func (a *KeyValueAdapter[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	items, err := a.read(ctx, "getById")
	if err != nil {
		return zero, err
	}
	if i := indexOf(items, id); i >= 0 {
		return items[i], nil
	}
	return zero, nil
}

func (a *KeyValueAdapter[T]) GetAll(ctx context.Context, query *domain.Query) ([]T, error) {
	items, err := a.read(ctx, "getAll")
	if err != nil {
		return nil, err
	}
	out, err := applyQuery(items, query)
	if err != nil {
		return nil, a.fail(ctx, "getAll", domain.StorageCodeEncoding, err)
	}
	return out, nil
}

func (a *KeyValueAdapter[T]) Find(ctx context.Context, query domain.Query) ([]T, error) {
	return a.GetAll(ctx, &query)
}

func (a *KeyValueAdapter[T]) Count(ctx context.Context, query *domain.Query) (int, error) {
	items, err := a.read(ctx, "count")
	if err != nil {
		return 0, err
	}
	n, err := countMatching(items, query)
	if err != nil {
		return 0, a.fail(ctx, "count", domain.StorageCodeEncoding, err)
	}
	return n, nil
}

func (a *KeyValueAdapter[T]) Exists(ctx context.Context, id string) (bool, error) {
	item, err := a.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return !isNil(item), nil
}

func (a *KeyValueAdapter[T]) Update(ctx context.Context, id string, patch domain.Patch) (T, error) {
	var zero T
	updated, err := a.UpdateMany(ctx, []domain.Change{{ID: id, Patch: patch}})
	if err != nil || len(updated) == 0 {
		return zero, err
	}
	return updated[0], nil
}

func (a *KeyValueAdapter[T]) UpdateMany(ctx context.Context, changes []domain.Change) ([]T, error) {
	var updated []T
	err := a.mutate(ctx, "updateMany", func(items []T) ([]T, error) {
		updated = nil
		for _, ch := range changes {
			i := indexOf(items, ch.ID)
			if i < 0 {
				continue
			}
			next, err := domain.ApplyPatch(items[i], ch.Patch)
			if err != nil {
				return nil, err
			}
			items[i] = next
			updated = append(updated, next)
		}
		if len(updated) == 0 {
			return nil, errSkipWrite
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	for _, u := range updated {
		a.hub.emit(ctx, domain.EventUpdated, u.GetID(), u)
	}
	if updated == nil {
		updated = []T{}
	}
	return updated, nil
}

func (a *KeyValueAdapter[T]) Delete(ctx context.Context, id string) (bool, error) {
	return a.DeleteMany(ctx, []string{id})
}

func (a *KeyValueAdapter[T]) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	var removed []string
	err := a.mutate(ctx, "deleteMany", func(items []T) ([]T, error) {
		removed = nil
		drop := make(map[string]bool, len(ids))
		for _, id := range ids {
			drop[id] = true
		}
		kept := items[:0]
		for _, item := range items {
			if drop[item.GetID()] {
				removed = append(removed, item.GetID())
				continue
			}
			kept = append(kept, item)
		}
		if len(removed) == 0 {
			return nil, errSkipWrite
		}
		return kept, nil
	})
	if err != nil {
		return false, err
	}

	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	return len(ids) > 0 && len(removed) == len(uniqueIDs(ids)), nil
}

func (a *KeyValueAdapter[T]) Clear(ctx context.Context) error {
	var removed []string
	err := a.mutate(ctx, "clear", func(items []T) ([]T, error) {
		removed = removed[:0]
		for _, item := range items {
			removed = append(removed, item.GetID())
		}
		return []T{}, nil
	})
	if err != nil {
		return err
	}
	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	return nil
}

func (a *KeyValueAdapter[T]) Backup(ctx context.Context) ([]T, error) {
	return a.GetAll(ctx, nil)
}

// Restore replaces the collection with items in a single write.
func (a *KeyValueAdapter[T]) Restore(ctx context.Context, items []T) error {
	prepared := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if isNil(item) {
			continue
		}
		c, err := cloneRecord(item)
		if err != nil {
			return a.fail(ctx, "restore", domain.StorageCodeEncoding, err)
		}
		if c.GetID() == "" {
			c.SetID(GenerateID(a.collection))
		}
		if seen[c.GetID()] {
			return duplicateError(a.collection, c.GetID())
		}
		seen[c.GetID()] = true
		prepared = append(prepared, c)
	}

	var removed []string
	err := a.mutate(ctx, "restore", func(existing []T) ([]T, error) {
		removed = removed[:0]
		for _, e := range existing {
			removed = append(removed, e.GetID())
		}
		return prepared, nil
	})
	if err != nil {
		return err
	}

	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	for _, p := range prepared {
		a.hub.emit(ctx, domain.EventCreated, p.GetID(), p)
	}
	return nil
}

func (a *KeyValueAdapter[T]) Subscribe(listener domain.EventListener) func() {
	return a.hub.subscribe(listener)
}

// Ping checks that the underlying store is reachable.
func (a *KeyValueAdapter[T]) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

func uniqueIDs(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
