// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// Mirror persists an encoded snapshot of a collection outside the process so
// a memory adapter can reload it after a restart.
type Mirror interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, data []byte) error
}

// MemoryAdapter keeps a collection in a process-local map. Records are
// copied on the way in and out so callers never alias stored state.
type MemoryAdapter[T domain.Record] struct {
	collection string
	mirror     Mirror
	hub        *eventHub

	mu    sync.RWMutex
	items map[string]T
	order []string
}

// MemoryOption configures a [MemoryAdapter].
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	mirror Mirror
}

// WithMirror mirrors every mutation to m.
func WithMirror(m Mirror) MemoryOption {
	return func(o *memoryOptions) { o.mirror = m }
}

// NewMemoryAdapter creates an empty in-memory adapter for collection.
func NewMemoryAdapter[T domain.Record](collection string, opts ...MemoryOption) *MemoryAdapter[T] {
	var o memoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryAdapter[T]{
		collection: collection,
		mirror:     o.mirror,
		hub:        newEventHub(collection),
		items:      make(map[string]T),
	}
}

func (a *MemoryAdapter[T]) Collection() string      { return a.collection }
func (a *MemoryAdapter[T]) Backend() domain.Backend { return domain.BackendMemory }

// LoadFromMirror replaces the in-memory state with the mirrored snapshot, if any.
func (a *MemoryAdapter[T]) LoadFromMirror(ctx context.Context) error {
	if a.mirror == nil {
		return nil
	}
	data, err := a.mirror.Load(ctx, a.collection)
	if err != nil {
		return domain.NewStorageError(a.Backend(), "loadMirror", domain.StorageCodeReadFailed, err)
	}
	if len(data) == 0 {
		return nil
	}
	items, err := decodeSnapshot[T](data)
	if err != nil {
		return domain.NewStorageError(a.Backend(), "loadMirror", domain.StorageCodeEncoding, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.replaceLocked(items)
	return nil
}

func encodeSnapshot[T domain.Record](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot[T domain.Record](data []byte) ([]T, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var items []T
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// syncMirrorLocked writes the current state to the mirror. Mirror failures
// are logged and do not fail the mutation.
func (a *MemoryAdapter[T]) syncMirrorLocked(ctx context.Context) {
	if a.mirror == nil {
		return
	}
	data, err := encodeSnapshot(a.listLocked())
	if err == nil {
		err = a.mirror.Save(ctx, a.collection, data)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to mirror in-memory collection",
			logging.ErrKey, err, "collection", a.collection)
	}
}

func (a *MemoryAdapter[T]) listLocked() []T {
	out := make([]T, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.items[id])
	}
	return out
}

func (a *MemoryAdapter[T]) replaceLocked(items []T) {
	a.items = make(map[string]T, len(items))
	a.order = a.order[:0]
	for _, item := range items {
		if isNil(item) {
			continue
		}
		if _, dup := a.items[item.GetID()]; !dup {
			a.order = append(a.order, item.GetID())
		}
		a.items[item.GetID()] = item
	}
}

func (a *MemoryAdapter[T]) copyOut(item T) (T, error) {
	out, err := cloneRecord(item)
	if err != nil {
		return out, domain.NewStorageError(a.Backend(), "read", domain.StorageCodeEncoding, err)
	}
	return out, nil
}

func (a *MemoryAdapter[T]) Create(ctx context.Context, item T) (T, error) {
	created, err := a.CreateMany(ctx, []T{item})
	if err != nil {
		var zero T
		return zero, err
	}
	return created[0], nil
}

func (a *MemoryAdapter[T]) CreateMany(ctx context.Context, items []T) ([]T, error) {
	prepared := make([]T, 0, len(items))
	for _, item := range items {
		if isNil(item) {
			return nil, domain.NewValidationError("cannot create a nil record in " + a.collection)
		}
		c, err := cloneRecord(item)
		if err != nil {
			return nil, domain.NewStorageError(a.Backend(), "createMany", domain.StorageCodeEncoding, err)
		}
		if c.GetID() == "" {
			c.SetID(GenerateID(a.collection))
		}
		prepared = append(prepared, c)
	}

	a.mu.Lock()
	seen := make(map[string]bool, len(prepared))
	for _, p := range prepared {
		if _, exists := a.items[p.GetID()]; exists || seen[p.GetID()] {
			a.mu.Unlock()
			return nil, duplicateError(a.collection, p.GetID())
		}
		seen[p.GetID()] = true
	}
	out := make([]T, 0, len(prepared))
	for _, p := range prepared {
		a.items[p.GetID()] = p
		a.order = append(a.order, p.GetID())
		c, _ := cloneRecord(p)
		out = append(out, c)
	}
	a.syncMirrorLocked(ctx)
	a.mu.Unlock()

	for _, c := range out {
		a.hub.emit(ctx, domain.EventCreated, c.GetID(), c)
	}
	return out, nil
}

func (a *MemoryAdapter[T]) GetByID(_ context.Context, id string) (T, error) {
	a.mu.RLock()
	item, ok := a.items[id]
	a.mu.RUnlock()
	if !ok {
		var zero T
		return zero, nil
	}
	return a.copyOut(item)
}

func (a *MemoryAdapter[T]) snapshotList() ([]T, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]T, 0, len(a.order))
	for _, id := range a.order {
		c, err := a.copyOut(a.items[id])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *MemoryAdapter[T]) GetAll(_ context.Context, query *domain.Query) ([]T, error) {
	items, err := a.snapshotList()
	if err != nil {
		return nil, err
	}
	out, err := applyQuery(items, query)
	if err != nil {
		return nil, domain.NewStorageError(a.Backend(), "getAll", domain.StorageCodeEncoding, err)
	}
	return out, nil
}

func (a *MemoryAdapter[T]) Find(ctx context.Context, query domain.Query) ([]T, error) {
	return a.GetAll(ctx, &query)
}

func (a *MemoryAdapter[T]) Count(_ context.Context, query *domain.Query) (int, error) {
	if query == nil || len(query.Where) == 0 {
		return a.Len(), nil
	}
	items, err := a.snapshotList()
	if err != nil {
		return 0, err
	}
	n, err := countMatching(items, query)
	if err != nil {
		return 0, domain.NewStorageError(a.Backend(), "count", domain.StorageCodeEncoding, err)
	}
	return n, nil
}

func (a *MemoryAdapter[T]) Exists(_ context.Context, id string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.items[id]
	return ok, nil
}

func (a *MemoryAdapter[T]) Update(ctx context.Context, id string, patch domain.Patch) (T, error) {
	var zero T
	updated, err := a.UpdateMany(ctx, []domain.Change{{ID: id, Patch: patch}})
	if err != nil || len(updated) == 0 {
		return zero, err
	}
	return updated[0], nil
}

func (a *MemoryAdapter[T]) UpdateMany(ctx context.Context, changes []domain.Change) ([]T, error) {
	a.mu.Lock()
	next := make(map[string]T, len(changes))
	var ids []string
	for _, ch := range changes {
		current, ok := next[ch.ID]
		if !ok {
			current, ok = a.items[ch.ID]
		}
		if !ok {
			continue
		}
		patched, err := domain.ApplyPatch(current, ch.Patch)
		if err != nil {
			a.mu.Unlock()
			return nil, err
		}
		if _, seen := next[ch.ID]; !seen {
			ids = append(ids, ch.ID)
		}
		next[ch.ID] = patched
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		a.items[id] = next[id]
		c, _ := cloneRecord(next[id])
		out = append(out, c)
	}
	if len(ids) > 0 {
		a.syncMirrorLocked(ctx)
	}
	a.mu.Unlock()

	for _, c := range out {
		a.hub.emit(ctx, domain.EventUpdated, c.GetID(), c)
	}
	return out, nil
}

func (a *MemoryAdapter[T]) Delete(ctx context.Context, id string) (bool, error) {
	return a.DeleteMany(ctx, []string{id})
}

func (a *MemoryAdapter[T]) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	want := uniqueIDs(ids)

	a.mu.Lock()
	var removed []string
	for id := range want {
		if _, ok := a.items[id]; ok {
			delete(a.items, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		a.order = slices.DeleteFunc(a.order, func(id string) bool { return want[id] })
		a.syncMirrorLocked(ctx)
	}
	a.mu.Unlock()

	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	return len(want) > 0 && len(removed) == len(want), nil
}

func (a *MemoryAdapter[T]) Clear(ctx context.Context) error {
	a.mu.Lock()
	removed := slices.Clone(a.order)
	a.replaceLocked(nil)
	a.syncMirrorLocked(ctx)
	a.mu.Unlock()

	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	return nil
}

func (a *MemoryAdapter[T]) Backup(ctx context.Context) ([]T, error) {
	return a.GetAll(ctx, nil)
}

// Restore replaces the collection with items in one step. Nil items are
// skipped; a duplicate id leaves the collection untouched.
func (a *MemoryAdapter[T]) Restore(ctx context.Context, items []T) error {
	prepared := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if isNil(item) {
			continue
		}
		c, err := cloneRecord(item)
		if err != nil {
			return domain.NewStorageError(a.Backend(), "restore", domain.StorageCodeEncoding, err)
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

	a.mu.Lock()
	removed := slices.Clone(a.order)
	a.replaceLocked(prepared)
	a.syncMirrorLocked(ctx)
	out := make([]T, 0, len(prepared))
	for _, p := range prepared {
		c, _ := cloneRecord(p)
		out = append(out, c)
	}
	a.mu.Unlock()

	for _, id := range removed {
		a.hub.emit(ctx, domain.EventDeleted, id, nil)
	}
	for _, c := range out {
		a.hub.emit(ctx, domain.EventCreated, c.GetID(), c)
	}
	return nil
}

func (a *MemoryAdapter[T]) Subscribe(listener domain.EventListener) func() {
	return a.hub.subscribe(listener)
}

// Snapshot returns a copy of every record keyed by id.
func (a *MemoryAdapter[T]) Snapshot() map[string]T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]T, len(a.items))
	for id, item := range a.items {
		if c, err := cloneRecord(item); err == nil {
			out[id] = c
		}
	}
	return out
}

// LoadSnapshot replaces the collection with snapshot without emitting events.
func (a *MemoryAdapter[T]) LoadSnapshot(ctx context.Context, snapshot map[string]T) {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	items := make([]T, 0, len(ids))
	for _, id := range ids {
		c, err := cloneRecord(snapshot[id])
		if err != nil {
			continue
		}
		c.SetID(id)
		items = append(items, c)
	}

	a.mu.Lock()
	a.replaceLocked(items)
	a.syncMirrorLocked(ctx)
	a.mu.Unlock()
}

// Keys returns the stored ids in insertion order.
func (a *MemoryAdapter[T]) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.order)
}

// Len returns the number of stored records.
func (a *MemoryAdapter[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

// All iterates over copies of the stored records in insertion order.
func (a *MemoryAdapter[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		items, err := a.snapshotList()
		if err != nil {
			return
		}
		for _, item := range items {
			if !yield(item.GetID(), item) {
				return
			}
		}
	}
}

// Ping always succeeds; the map is in-process.
func (a *MemoryAdapter[T]) Ping(context.Context) error { return nil }
