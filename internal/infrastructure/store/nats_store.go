// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// DefaultKVBucket is the JetStream key-value bucket used when none is configured.
const DefaultKVBucket = "meeting-scheduler"

// maxModifyAttempts bounds the optimistic retries of one read-modify-write.
const maxModifyAttempts = 5

// INatsKeyValue is the subset of jetstream.KeyValue used by [NatsStore].
type INatsKeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

// NatsStore is a ValueStore over a NATS JetStream key-value bucket. Writes
// are revision-checked so concurrent writers cannot lose each other's updates.
type NatsStore struct {
	kvStore INatsKeyValue
	bucket  string
	close   func()
}

// NewNatsStore wraps kv. closeFn, if set, runs on Close.
func NewNatsStore(kv INatsKeyValue, bucket string, closeFn func()) *NatsStore {
	return &NatsStore{kvStore: kv, bucket: bucket, close: closeFn}
}

// IsReady checks if the store is ready for use
func (s *NatsStore) IsReady() bool {
	return s.kvStore != nil
}

func (s *NatsStore) Backend() domain.Backend { return domain.BackendNatsKV }

func (s *NatsStore) startSpan(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("db.system", "nats"),
		attribute.String("db.operation", op),
		attribute.String("db.nats.key", key),
		attribute.String("db.nats.bucket", s.bucket),
	}, attrs...)
	return otel.Tracer(tracerName).Start(ctx, "nats.kv."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (s *NatsStore) unavailable(op string) error {
	return domain.NewStorageError(s.Backend(), op, domain.StorageCodeUnavailable,
		errors.New("nats key-value store is not available"))
}

// get returns the current value and revision of key; a missing key yields
// a nil value and revision 0.
func (s *NatsStore) get(ctx context.Context, key string) ([]byte, uint64, error) {
	ctx, span := s.startSpan(ctx, "get", key)
	defer span.End()

	if !s.IsReady() {
		err := s.unavailable("get")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	entry, err := s.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			span.SetStatus(codes.Ok, "")
			return nil, 0, nil
		}
		slog.ErrorContext(ctx, "error getting value from NATS KV",
			logging.ErrKey, err, "key", key)
		err = domain.NewStorageError(s.Backend(), "get", domain.StorageCodeReadFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetAttributes(attribute.Int64("db.nats.revision", int64(entry.Revision())))
	span.SetStatus(codes.Ok, "")
	return entry.Value(), entry.Revision(), nil
}

func (s *NatsStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, _, err := s.get(ctx, key)
	return value, err
}

// write stores value under key at the expected revision, creating the key
// when revision is 0. It reports a lost race as a conflict.
func (s *NatsStore) write(ctx context.Context, key string, value []byte, revision uint64) (conflict bool, err error) {
	op := "update"
	if revision == 0 {
		op = "create"
	}
	ctx, span := s.startSpan(ctx, op, key, attribute.Int64("db.nats.revision", int64(revision)))
	defer span.End()

	if revision == 0 {
		_, err = s.kvStore.Create(ctx, key, value)
	} else {
		_, err = s.kvStore.Update(ctx, key, value, revision)
	}
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) || strings.Contains(err.Error(), "wrong last sequence") {
			span.SetStatus(codes.Error, "conflict")
			return true, nil
		}
		slog.ErrorContext(ctx, "error writing value to NATS KV",
			logging.ErrKey, err, "key", key, "revision", revision)
		err = domain.NewStorageError(s.Backend(), op, domain.StorageCodeWriteFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	span.SetStatus(codes.Ok, "")
	return false, nil
}

func (s *NatsStore) Modify(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if !s.IsReady() {
		return s.unavailable("modify")
	}

	for attempt := 1; attempt <= maxModifyAttempts; attempt++ {
		current, revision, err := s.get(ctx, key)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		conflict, err := s.write(ctx, key, next, revision)
		if err != nil {
			return err
		}
		if !conflict {
			return nil
		}
		slog.DebugContext(ctx, "concurrent modification of NATS KV key, retrying",
			"key", key, "attempt", attempt)
	}

	return domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeConflict,
		fmt.Errorf("key %s changed concurrently %d times", key, maxModifyAttempts))
}

func (s *NatsStore) Ping(ctx context.Context) error {
	_, _, err := s.get(ctx, CollectionKey("ping"))
	return err
}

func (s *NatsStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
