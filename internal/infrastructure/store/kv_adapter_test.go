// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

func TestKeyValueAdapterStoresOneArrayPerCollection(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))

	_, err := a.CreateMany(ctx, seedRecords())
	require.NoError(t, err)

	raw, ok := kv.data["meeting_scheduler_widgets"]
	require.True(t, ok)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Len(t, stored, 3)
	assert.Equal(t, "a", stored[0]["id"])
	assert.Equal(t, 1, kv.writes, "a batch is one write")
}

func TestKeyValueAdapterBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(newMockNatsKeyValue(), DefaultKVBucket, nil))

	_, err := a.CreateMany(ctx, []*testRecord{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))

	n, err := a.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNatsStoreRetriesOnConcurrentModification(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))

	_, err := a.Create(ctx, &testRecord{ID: "a", Name: "alpha"})
	require.NoError(t, err)

	// Another process appends "b" between our read and our write.
	kv.beforeWrite = func(m *mockNatsKeyValue, key string) {
		m.beforeWrite = nil
		m.bump(key, []byte(`[{"id":"a","name":"alpha"},{"id":"b","name":"bravo"}]`))
	}

	_, err = a.Create(ctx, &testRecord{ID: "c", Name: "charlie"})
	require.NoError(t, err)

	all, err := a.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all), "the concurrent write must survive")
}

func TestNatsStoreCreateRace(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))

	kv.beforeWrite = func(m *mockNatsKeyValue, key string) {
		m.beforeWrite = nil
		m.bump(key, []byte(`[{"id":"b","name":"bravo"}]`))
	}

	_, err := a.Create(ctx, &testRecord{ID: "a", Name: "alpha"})
	require.NoError(t, err)

	all, err := a.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(all))
}

func TestNatsStoreGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	kv := newMockNatsKeyValue()
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))
	_, err := a.Create(ctx, &testRecord{ID: "a"})
	require.NoError(t, err)

	kv.beforeWrite = func(m *mockNatsKeyValue, key string) {
		m.bump(key, m.data[key])
	}

	_, err = a.Create(ctx, &testRecord{ID: "b"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.StorageCodeConflict, se.Code)
	assert.Equal(t, domain.BackendNatsKV, se.Backend)
}

func TestNatsStoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(kv *mockNatsKeyValue)
		wantCode string
	}{
		{
			name:     "get failure",
			setup:    func(kv *mockNatsKeyValue) { kv.getError = errors.New("connection closed") },
			wantCode: domain.StorageCodeReadFailed,
		},
		{
			name:     "create failure",
			setup:    func(kv *mockNatsKeyValue) { kv.createError = jetstream.ErrBucketNotFound },
			wantCode: domain.StorageCodeWriteFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMockNatsKeyValue()
			tt.setup(kv)
			a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))

			_, err := a.Create(context.Background(), &testRecord{Name: "x"})
			require.Error(t, err)
			assert.True(t, domain.IsBackendFailure(err))
			var se *domain.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantCode, se.Code)
		})
	}
}

func TestNatsStoreNotReady(t *testing.T) {
	closed := false
	s := NewNatsStore(nil, DefaultKVBucket, func() { closed = true })
	assert.False(t, s.IsReady())

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))

	require.NoError(t, s.Close())
	assert.True(t, closed)
}

func TestSQLiteStoreQuota(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "quota.db"), 256)
	require.NoError(t, err)
	defer s.Close()
	a := NewKeyValueAdapter[*testRecord](testCollection, s)

	_, err = a.Create(ctx, &testRecord{ID: "small", Name: "fits"})
	require.NoError(t, err)

	_, err = a.Create(ctx, &testRecord{ID: "big", Name: strings.Repeat("x", 512)})
	require.Error(t, err)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.StorageCodeQuotaExceeded, se.Code)
	assert.Equal(t, domain.BackendDurable, se.Backend)

	all, err := a.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, ids(all), "a rejected write leaves the previous value")
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	_, err = NewKeyValueAdapter[*testRecord](testCollection, s).CreateMany(ctx, seedRecords())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(ctx))

	all, err := NewKeyValueAdapter[*testRecord](testCollection, reopened).GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "", 0)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestKeyValueAdapterBackendFailure(t *testing.T) {
	ctx := context.Background()
	a := NewKeyValueAdapter[*testRecord](testCollection, &failingValueStore{
		backend: domain.BackendDurable,
		err:     errors.New("disk unplugged"),
	})

	_, err := a.GetAll(ctx, nil)
	require.Error(t, err)
	assert.True(t, domain.IsBackendFailure(err))

	_, err = a.Create(ctx, &testRecord{Name: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsBackendFailure(err))

	assert.Error(t, a.Ping(ctx))
}

func TestKeyValueAdapterCorruptValue(t *testing.T) {
	kv := newMockNatsKeyValue()
	kv.data[CollectionKey(testCollection)] = []byte("{not json")
	kv.revisions[CollectionKey(testCollection)] = 1
	a := NewKeyValueAdapter[*testRecord](testCollection, NewNatsStore(kv, DefaultKVBucket, nil))

	_, err := a.GetAll(context.Background(), nil)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.StorageCodeEncoding, se.Code)
}
