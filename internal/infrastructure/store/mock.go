// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// mockKeyValueEntry implements jetstream.KeyValueEntry for testing
type mockKeyValueEntry struct {
	key      string
	value    []byte
	revision uint64
}

func (m *mockKeyValueEntry) Key() string                     { return m.key }
func (m *mockKeyValueEntry) Value() []byte                   { return m.value }
func (m *mockKeyValueEntry) Revision() uint64                { return m.revision }
func (m *mockKeyValueEntry) Created() time.Time              { return time.Now() }
func (m *mockKeyValueEntry) Delta() uint64                   { return 0 }
func (m *mockKeyValueEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
func (m *mockKeyValueEntry) Bucket() string                  { return "test-bucket" }

// mockNatsKeyValue implements INatsKeyValue for testing
type mockNatsKeyValue struct {
	mu          sync.Mutex
	data        map[string][]byte
	revisions   map[string]uint64
	getError    error
	createError error
	updateError error
	// beforeWrite runs ahead of every Create/Update and can simulate a
	// concurrent writer by calling bump.
	beforeWrite func(m *mockNatsKeyValue, key string)
	writes      int
}

func newMockNatsKeyValue() *mockNatsKeyValue {
	return &mockNatsKeyValue{
		data:      make(map[string][]byte),
		revisions: make(map[string]uint64),
	}
}

// bump simulates another writer storing value under key.
func (m *mockNatsKeyValue) bump(key string, value []byte) {
	m.data[key] = value
	m.revisions[key]++
}

func (m *mockNatsKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	value, exists := m.data[key]
	if !exists {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockKeyValueEntry{key: key, value: slices.Clone(value), revision: m.revisions[key]}, nil
}

func (m *mockNatsKeyValue) Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return 0, m.createError
	}
	if m.beforeWrite != nil {
		m.beforeWrite(m, key)
	}
	if _, exists := m.data[key]; exists {
		return 0, jetstream.ErrKeyExists
	}
	m.writes++
	m.data[key] = slices.Clone(value)
	m.revisions[key] = 1
	return 1, nil
}

func (m *mockNatsKeyValue) Update(ctx context.Context, key string, value []byte, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return 0, m.updateError
	}
	if m.beforeWrite != nil {
		m.beforeWrite(m, key)
	}
	currentRevision, exists := m.revisions[key]
	if !exists {
		return 0, jetstream.ErrKeyNotFound
	}
	if currentRevision != expectedRevision {
		return 0, errors.New("nats: wrong last sequence: 3")
	}
	m.writes++
	m.data[key] = slices.Clone(value)
	m.revisions[key] = currentRevision + 1
	return currentRevision + 1, nil
}

// failingValueStore is a ValueStore whose every call fails with err.
type failingValueStore struct {
	backend domain.Backend
	err     error
}

func (f *failingValueStore) Backend() domain.Backend { return f.backend }
func (f *failingValueStore) Load(context.Context, string) ([]byte, error) {
	return nil, domain.NewStorageError(f.backend, "load", domain.StorageCodeUnavailable, f.err)
}
func (f *failingValueStore) Modify(context.Context, string, func([]byte) ([]byte, error)) error {
	return domain.NewStorageError(f.backend, "modify", domain.StorageCodeUnavailable, f.err)
}
func (f *failingValueStore) Ping(context.Context) error {
	return domain.NewStorageError(f.backend, "ping", domain.StorageCodeUnavailable, f.err)
}
func (f *failingValueStore) Close() error { return nil }

// mockRedisClient implements RedisClient over a map.
type mockRedisClient struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	pingErr error
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	if m.pingErr != nil {
		return redis.NewStatusResult("", m.pingErr)
	}
	return redis.NewStatusResult("PONG", nil)
}

// mockDocumentCollection implements DocumentCollection in memory, evaluating
// the equality and $in filters produced by DocumentAdapter.
type mockDocumentCollection struct {
	mu    sync.Mutex
	docs  map[string]bson.M
	order []string
	err   error
	// beforeInsertMany runs under the lock ahead of each InsertMany, standing
	// in for a concurrent writer.
	beforeInsertMany func(m *mockDocumentCollection)
}

func newMockDocumentCollection() *mockDocumentCollection {
	return &mockDocumentCollection{docs: make(map[string]bson.M)}
}

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
}

func (m *mockDocumentCollection) matches(doc bson.M, filter interface{}) bool {
	f, _ := filter.(bson.M)
	for field, want := range f {
		got := normalize(doc[field])
		if cond, ok := want.(bson.M); ok {
			if in, ok := cond["$in"].(bson.A); ok {
				found := false
				for _, v := range in {
					if jsonEqual(got, normalize(v)) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
				continue
			}
		}
		if !jsonEqual(got, normalize(want)) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func (m *mockDocumentCollection) filtered(filter interface{}) []bson.M {
	var out []bson.M
	for _, id := range m.order {
		if doc := m.docs[id]; m.matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out
}

func (m *mockDocumentCollection) insert(doc interface{}) error {
	d, ok := doc.(bson.M)
	if !ok {
		return errors.New("mock collection only accepts bson.M documents")
	}
	id, _ := d["_id"].(string)
	if _, exists := m.docs[id]; exists {
		return duplicateKeyError()
	}
	m.docs[id] = d
	m.order = append(m.order, id)
	return nil
}

func (m *mockDocumentCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if err := m.insert(document); err != nil {
		return nil, err
	}
	return &mongo.InsertOneResult{InsertedID: document.(bson.M)["_id"]}, nil
}

func (m *mockDocumentCollection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.beforeInsertMany != nil {
		m.beforeInsertMany(m)
	}
	res := &mongo.InsertManyResult{}
	for i, doc := range documents {
		if err := m.insert(doc); err != nil {
			return res, mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{{
				WriteError: mongo.WriteError{Index: i, Code: 11000, Message: "E11000 duplicate key error"},
			}}}
		}
		res.InsertedIDs = append(res.InsertedIDs, doc.(bson.M)["_id"])
	}
	return res, nil
}

func (m *mockDocumentCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, m.err, nil)
	}
	docs := m.filtered(filter)
	if len(docs) == 0 {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(docs[0], nil, nil)
}

func (m *mockDocumentCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	docs := m.filtered(filter)

	var skip, limit int64
	for _, o := range opts {
		if o == nil {
			continue
		}
		if sort, ok := o.Sort.(bson.D); ok && len(sort) > 0 {
			field, dir := sort[0].Key, sort[0].Value.(int)
			slices.SortStableFunc(docs, func(a, b bson.M) int {
				return dir * compareValues(normalize(a[field]), normalize(b[field]))
			})
		}
		if o.Skip != nil {
			skip = *o.Skip
		}
		if o.Limit != nil {
			limit = *o.Limit
		}
	}
	docs = paginate(docs, int(limit), int(skip))

	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func (m *mockDocumentCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	docs := m.filtered(filter)
	if len(docs) == 0 {
		return &mongo.UpdateResult{}, nil
	}
	id, _ := docs[0]["_id"].(string)
	doc := replacement.(bson.M)
	doc["_id"] = id
	m.docs[id] = doc
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *mockDocumentCollection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var deleted int64
	for _, doc := range m.filtered(filter) {
		id, _ := doc["_id"].(string)
		delete(m.docs, id)
		m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
		deleted++
	}
	return &mongo.DeleteResult{DeletedCount: deleted}, nil
}

func (m *mockDocumentCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.filtered(filter))), nil
}
