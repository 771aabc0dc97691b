// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// FailoverAdapter sends every call to a primary adapter and retries it once
// against a fallback when the primary reports a backend failure. Validation,
// conflict and not-found outcomes are returned as-is.
type FailoverAdapter[T domain.Record] struct {
	primary   domain.Adapter[T]
	fallback  domain.Adapter[T]
	failovers atomic.Int64
}

// NewFailoverAdapter wraps primary. A nil fallback disables retries.
func NewFailoverAdapter[T domain.Record](primary, fallback domain.Adapter[T]) *FailoverAdapter[T] {
	return &FailoverAdapter[T]{primary: primary, fallback: fallback}
}

// Failovers reports how many calls were served by the fallback.
func (f *FailoverAdapter[T]) Failovers() int64 {
	return f.failovers.Load()
}

// Primary returns the wrapped primary adapter.
func (f *FailoverAdapter[T]) Primary() domain.Adapter[T] {
	return f.primary
}

func (f *FailoverAdapter[T]) shouldRetry(ctx context.Context, op string, err error) bool {
	if f.fallback == nil || !domain.IsBackendFailure(err) {
		return false
	}
	f.failovers.Add(1)
	slog.With(logging.StorageAttrs(string(f.primary.Backend()), f.primary.Collection(), op)...).
		WarnContext(ctx, "primary storage failed, retrying on fallback",
			logging.ErrKey, err,
			"fallback_backend", string(f.fallback.Backend()),
		)
	return true
}

func failover[T domain.Record, R any](ctx context.Context, f *FailoverAdapter[T], op string, call func(domain.Adapter[T]) (R, error)) (R, error) {
	res, err := call(f.primary)
	if err != nil && f.shouldRetry(ctx, op, err) {
		return call(f.fallback)
	}
	return res, err
}

func (f *FailoverAdapter[T]) Collection() string      { return f.primary.Collection() }
func (f *FailoverAdapter[T]) Backend() domain.Backend { return f.primary.Backend() }

func (f *FailoverAdapter[T]) Create(ctx context.Context, item T) (T, error) {
	return failover(ctx, f, "create", func(a domain.Adapter[T]) (T, error) { return a.Create(ctx, item) })
}

func (f *FailoverAdapter[T]) GetByID(ctx context.Context, id string) (T, error) {
	return failover(ctx, f, "getById", func(a domain.Adapter[T]) (T, error) { return a.GetByID(ctx, id) })
}

func (f *FailoverAdapter[T]) GetAll(ctx context.Context, query *domain.Query) ([]T, error) {
	return failover(ctx, f, "getAll", func(a domain.Adapter[T]) ([]T, error) { return a.GetAll(ctx, query) })
}

func (f *FailoverAdapter[T]) Update(ctx context.Context, id string, patch domain.Patch) (T, error) {
	return failover(ctx, f, "update", func(a domain.Adapter[T]) (T, error) { return a.Update(ctx, id, patch) })
}

func (f *FailoverAdapter[T]) Delete(ctx context.Context, id string) (bool, error) {
	return failover(ctx, f, "delete", func(a domain.Adapter[T]) (bool, error) { return a.Delete(ctx, id) })
}

func (f *FailoverAdapter[T]) CreateMany(ctx context.Context, items []T) ([]T, error) {
	return failover(ctx, f, "createMany", func(a domain.Adapter[T]) ([]T, error) { return a.CreateMany(ctx, items) })
}

func (f *FailoverAdapter[T]) UpdateMany(ctx context.Context, changes []domain.Change) ([]T, error) {
	return failover(ctx, f, "updateMany", func(a domain.Adapter[T]) ([]T, error) { return a.UpdateMany(ctx, changes) })
}

func (f *FailoverAdapter[T]) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	return failover(ctx, f, "deleteMany", func(a domain.Adapter[T]) (bool, error) { return a.DeleteMany(ctx, ids) })
}

func (f *FailoverAdapter[T]) Find(ctx context.Context, query domain.Query) ([]T, error) {
	return failover(ctx, f, "find", func(a domain.Adapter[T]) ([]T, error) { return a.Find(ctx, query) })
}

func (f *FailoverAdapter[T]) Count(ctx context.Context, query *domain.Query) (int, error) {
	return failover(ctx, f, "count", func(a domain.Adapter[T]) (int, error) { return a.Count(ctx, query) })
}

func (f *FailoverAdapter[T]) Exists(ctx context.Context, id string) (bool, error) {
	return failover(ctx, f, "exists", func(a domain.Adapter[T]) (bool, error) { return a.Exists(ctx, id) })
}

func (f *FailoverAdapter[T]) Clear(ctx context.Context) error {
	_, err := failover(ctx, f, "clear", func(a domain.Adapter[T]) (struct{}, error) { return struct{}{}, a.Clear(ctx) })
	return err
}

func (f *FailoverAdapter[T]) Backup(ctx context.Context) ([]T, error) {
	return failover(ctx, f, "backup", func(a domain.Adapter[T]) ([]T, error) { return a.Backup(ctx) })
}

func (f *FailoverAdapter[T]) Restore(ctx context.Context, items []T) error {
	_, err := failover(ctx, f, "restore", func(a domain.Adapter[T]) (struct{}, error) { return struct{}{}, a.Restore(ctx, items) })
	return err
}

// Subscribe registers listener on both the primary and the fallback.
func (f *FailoverAdapter[T]) Subscribe(listener domain.EventListener) func() {
	unsubPrimary := f.primary.Subscribe(listener)
	if f.fallback == nil {
		return unsubPrimary
	}
	unsubFallback := f.fallback.Subscribe(listener)
	return func() {
		unsubPrimary()
		unsubFallback()
	}
}
