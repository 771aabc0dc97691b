// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// DefaultMaxValueBytes is the largest value a SQLite store accepts per key.
const DefaultMaxValueBytes = 5 * 1024 * 1024

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore is the durable ValueStore: one row per key in an embedded
// SQLite file. Writes run inside a transaction so a failed write leaves the
// previous value intact.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	maxBytes int
	mu       sync.Mutex
}

// OpenSQLite opens (creating if needed) the SQLite file at path. maxBytes
// bounds every stored value; zero selects DefaultMaxValueBytes.
func OpenSQLite(ctx context.Context, path string, maxBytes int) (*SQLiteStore, error) {
	if path == "" {
		return nil, domain.NewValidationError("durable storage path is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxValueBytes
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.NewStorageError(domain.BackendDurable, "open", domain.StorageCodeUnavailable, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, domain.NewStorageError(domain.BackendDurable, "open", domain.StorageCodeUnavailable, err)
	}

	return &SQLiteStore{db: db, path: path, maxBytes: maxBytes}, nil
}

func (s *SQLiteStore) Backend() domain.Backend { return domain.BackendDurable }

// Path returns the database file the store was opened on.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sqlite.kv."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", op),
			attribute.String("db.sqlite.key", key),
		),
	)
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.startSpan(ctx, "load", key)
	defer span.End()

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}
	if err != nil {
		err = domain.NewStorageError(s.Backend(), "load", domain.StorageCodeReadFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return value, nil
}

func (s *SQLiteStore) Modify(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) (err error) {
	ctx, span := s.startSpan(ctx, "modify", key)
	defer func() {
		if err != nil && !errors.Is(err, errSkipWrite) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeReadFailed, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if len(next) > s.maxBytes {
		err = domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeQuotaExceeded,
			fmt.Errorf("value for %s is %d bytes, limit is %d", key, len(next), s.maxBytes))
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, next, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeWriteFailed, err)
	}

	if err = tx.Commit(); err != nil {
		return domain.NewStorageError(s.Backend(), "modify", domain.StorageCodeWriteFailed, err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.NewStorageError(s.Backend(), "ping", domain.StorageCodeUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
