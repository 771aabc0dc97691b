// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// DocumentCollection is the subset of *mongo.Collection used by [DocumentAdapter].
type DocumentCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// DocumentWatcher is implemented by collections that support change streams.
type DocumentWatcher interface {
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (*mongo.ChangeStream, error)
}

// DocumentAdapter stores one MongoDB document per record with _id set to the
// record id. Single-document writes are atomic; multi-record operations are not.
type DocumentAdapter[T domain.Record] struct {
	collection string
	coll       DocumentCollection
	hub        *eventHub
	feedActive atomic.Bool
}

// NewDocumentAdapter creates an adapter over coll.
func NewDocumentAdapter[T domain.Record](collection string, coll DocumentCollection) *DocumentAdapter[T] {
	return &DocumentAdapter[T]{
		collection: collection,
		coll:       coll,
		hub:        newEventHub(collection),
	}
}

// ConnectMongo connects to uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, domain.NewStorageError(domain.BackendCloudDocument, "connect", domain.StorageCodeUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, domain.NewStorageError(domain.BackendCloudDocument, "connect", domain.StorageCodeUnavailable, err)
	}
	return client, nil
}

func (a *DocumentAdapter[T]) Collection() string      { return a.collection }
func (a *DocumentAdapter[T]) Backend() domain.Backend { return domain.BackendCloudDocument }

func (a *DocumentAdapter[T]) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mongodb."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.operation", op),
			attribute.String("db.mongodb.collection", a.collection),
		),
	)
}

func (a *DocumentAdapter[T]) end(ctx context.Context, span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		err = domain.NewConflictError("duplicate record id in "+a.collection, err)
	} else {
		code := domain.StorageCodeWriteFailed
		if errors.Is(err, context.DeadlineExceeded) || mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
			code = domain.StorageCodeUnavailable
		}
		err = asStorageError(a.Backend(), op, code, err)
	}
	if domain.IsBackendFailure(err) {
		slog.With(logging.StorageAttrs(string(a.Backend()), a.collection, op)...).
			ErrorContext(ctx, "storage operation failed", logging.ErrKey, err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// toDocument converts a record into a BSON document keyed by _id.
func toDocument(item any) (bson.M, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = doc["id"]
	delete(doc, "id")
	return doc, nil
}

func fromDocument[T domain.Record](doc bson.M) (T, error) {
	var out T
	doc["id"] = doc["_id"]
	delete(doc, "_id")
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func documentField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

// toFilter maps a where clause onto equality and $in filters.
func toFilter(where map[string]any) bson.M {
	filter := bson.M{}
	for field, value := range where {
		values, isSet := whereValues(value)
		if isSet {
			filter[documentField(field)] = bson.M{"$in": bson.A(values)}
		} else {
			filter[documentField(field)] = values[0]
		}
	}
	return filter
}

func (a *DocumentAdapter[T]) decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := fromDocument[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (a *DocumentAdapter[T]) emit(ctx context.Context, typ domain.EventType, id string, data any) {
	if a.feedActive.Load() {
		return
	}
	a.hub.emit(ctx, typ, id, data)
}

func (a *DocumentAdapter[T]) prepare(item T) (T, bson.M, error) {
	var zero T
	if isNil(item) {
		return zero, nil, domain.NewValidationError("cannot create a nil record in " + a.collection)
	}
	c, err := cloneRecord(item)
	if err != nil {
		return zero, nil, err
	}
	if c.GetID() == "" {
		c.SetID(GenerateID(a.collection))
	}
	doc, err := toDocument(c)
	return c, doc, err
}

func (a *DocumentAdapter[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	ctx, span := a.startSpan(ctx, "insert_one")
	c, doc, err := a.prepare(item)
	if err == nil {
		_, err = a.coll.InsertOne(ctx, doc)
	}
	if err = a.end(ctx, span, "create", err); err != nil {
		return zero, err
	}
	a.emit(ctx, domain.EventCreated, c.GetID(), c)
	return c, nil
}

// prepareBatch copies items, assigns missing ids and rejects nil records and
// ids repeated within the batch.
func (a *DocumentAdapter[T]) prepareBatch(items []T) ([]T, []interface{}, bson.A, error) {
	out := make([]T, 0, len(items))
	docs := make([]interface{}, 0, len(items))
	ids := make(bson.A, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if isNil(item) {
			return nil, nil, nil, domain.NewValidationError("cannot create a nil record in " + a.collection)
		}
		c, doc, err := a.prepare(item)
		if err != nil {
			return nil, nil, nil, domain.NewStorageError(a.Backend(), "createMany", domain.StorageCodeEncoding, err)
		}
		if seen[c.GetID()] {
			return nil, nil, nil, duplicateError(a.collection, c.GetID())
		}
		seen[c.GetID()] = true
		out = append(out, c)
		docs = append(docs, doc)
		ids = append(ids, c.GetID())
	}
	return out, docs, ids, nil
}

// insertMany writes docs in order. When a document fails, the ones written
// before it are deleted again so the batch is stored whole or not at all.
func (a *DocumentAdapter[T]) insertMany(ctx context.Context, docs []interface{}, ids bson.A) error {
	ctx, span := a.startSpan(ctx, "insert_many")
	_, err := a.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		if n := bulkErr.WriteErrors[0].Index; n > 0 && n <= len(ids) {
			if _, delErr := a.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids[:n]}}); delErr != nil {
				slog.With(logging.StorageAttrs(string(a.Backend()), a.collection, "createMany")...).
					ErrorContext(ctx, "failed to remove partially inserted batch", logging.ErrKey, delErr, logging.PriorityCritical())
			}
		}
	}
	return a.end(ctx, span, "createMany", err)
}

func (a *DocumentAdapter[T]) CreateMany(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return []T{}, nil
	}
	out, docs, ids, err := a.prepareBatch(items)
	if err != nil {
		return nil, err
	}
	existing, err := a.idsMatching(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, duplicateError(a.collection, existing[0])
	}
	if err := a.insertMany(ctx, docs, ids); err != nil {
		return nil, err
	}
	for _, c := range out {
		a.emit(ctx, domain.EventCreated, c.GetID(), c)
	}
	return out, nil
}

func (a *DocumentAdapter[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	ctx, span := a.startSpan(ctx, "find_one")
	var doc bson.M
	err := a.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, a.end(ctx, span, "getById", nil)
	}
	var item T
	if err == nil {
		item, err = fromDocument[T](doc)
	}
	if err = a.end(ctx, span, "getById", err); err != nil {
		return zero, err
	}
	return item, nil
}

func (a *DocumentAdapter[T]) GetAll(ctx context.Context, query *domain.Query) ([]T, error) {
	ctx, span := a.startSpan(ctx, "find")
	filter := bson.M{}
	opts := options.Find()
	if query != nil {
		filter = toFilter(query.Where)
		if query.OrderBy != nil && query.OrderBy.Field != "" {
			dir := 1
			if query.OrderBy.Direction == domain.SortDesc {
				dir = -1
			}
			opts.SetSort(bson.D{{Key: documentField(query.OrderBy.Field), Value: dir}})
		}
		if query.Offset > 0 {
			opts.SetSkip(int64(query.Offset))
		}
		if query.Limit > 0 {
			opts.SetLimit(int64(query.Limit))
		}
	}

	var items []T
	cursor, err := a.coll.Find(ctx, filter, opts)
	if err == nil {
		items, err = a.decodeCursor(ctx, cursor)
	}
	if err = a.end(ctx, span, "getAll", err); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *DocumentAdapter[T]) Find(ctx context.Context, query domain.Query) ([]T, error) {
	return a.GetAll(ctx, &query)
}

func (a *DocumentAdapter[T]) Count(ctx context.Context, query *domain.Query) (int, error) {
	ctx, span := a.startSpan(ctx, "count_documents")
	filter := bson.M{}
	if query != nil {
		filter = toFilter(query.Where)
	}
	n, err := a.coll.CountDocuments(ctx, filter)
	if err = a.end(ctx, span, "count", err); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (a *DocumentAdapter[T]) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := a.startSpan(ctx, "count_documents")
	n, err := a.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err = a.end(ctx, span, "exists", err); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *DocumentAdapter[T]) Update(ctx context.Context, id string, patch domain.Patch) (T, error) {
	var zero T
	current, err := a.GetByID(ctx, id)
	if err != nil || isNil(current) {
		return zero, err
	}
	next, err := domain.ApplyPatch(current, patch)
	if err != nil {
		return zero, err
	}

	ctx, span := a.startSpan(ctx, "replace_one")
	doc, err := toDocument(next)
	var res *mongo.UpdateResult
	if err == nil {
		res, err = a.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	}
	if err = a.end(ctx, span, "update", err); err != nil {
		return zero, err
	}
	if res != nil && res.MatchedCount == 0 {
		return zero, nil
	}
	a.emit(ctx, domain.EventUpdated, id, next)
	return next, nil
}

func (a *DocumentAdapter[T]) UpdateMany(ctx context.Context, changes []domain.Change) ([]T, error) {
	out := make([]T, 0, len(changes))
	for _, ch := range changes {
		item, err := a.Update(ctx, ch.ID, ch.Patch)
		if err != nil {
			return nil, err
		}
		if !isNil(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (a *DocumentAdapter[T]) Delete(ctx context.Context, id string) (bool, error) {
	return a.DeleteMany(ctx, []string{id})
}

func (a *DocumentAdapter[T]) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	want := uniqueIDs(ids)
	if len(want) == 0 {
		return false, nil
	}
	list := make(bson.A, 0, len(want))
	for id := range want {
		list = append(list, id)
	}

	existing, err := a.idsMatching(ctx, bson.M{"_id": bson.M{"$in": list}})
	if err != nil {
		return false, err
	}

	ctx, span := a.startSpan(ctx, "delete_many")
	res, err := a.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": list}})
	if err = a.end(ctx, span, "deleteMany", err); err != nil {
		return false, err
	}
	for _, id := range existing {
		a.emit(ctx, domain.EventDeleted, id, nil)
	}
	return res != nil && int(res.DeletedCount) == len(want), nil
}

func (a *DocumentAdapter[T]) idsMatching(ctx context.Context, filter bson.M) ([]string, error) {
	ctx, span := a.startSpan(ctx, "find")
	var ids []string
	cursor, err := a.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err == nil {
		defer cursor.Close(ctx)
		var docs []bson.M
		err = cursor.All(ctx, &docs)
		for _, doc := range docs {
			if id, ok := doc["_id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	if err = a.end(ctx, span, "find", err); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *DocumentAdapter[T]) Clear(ctx context.Context) error {
	existing, err := a.idsMatching(ctx, bson.M{})
	if err != nil {
		return err
	}
	ctx, span := a.startSpan(ctx, "delete_many")
	_, err = a.coll.DeleteMany(ctx, bson.M{})
	if err = a.end(ctx, span, "clear", err); err != nil {
		return err
	}
	for _, id := range existing {
		a.emit(ctx, domain.EventDeleted, id, nil)
	}
	return nil
}

func (a *DocumentAdapter[T]) Backup(ctx context.Context) ([]T, error) {
	return a.GetAll(ctx, nil)
}

// Restore replaces the collection with items. The batch is checked before
// anything is deleted, and the previous records are written back if the
// insert fails.
func (a *DocumentAdapter[T]) Restore(ctx context.Context, items []T) error {
	batch := make([]T, 0, len(items))
	for _, item := range items {
		if !isNil(item) {
			batch = append(batch, item)
		}
	}
	out, docs, ids, err := a.prepareBatch(batch)
	if err != nil {
		return err
	}
	previous, err := a.Backup(ctx)
	if err != nil {
		return err
	}
	if err := a.Clear(ctx); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := a.insertMany(ctx, docs, ids); err != nil {
		a.reinsert(ctx, previous)
		return err
	}
	for _, c := range out {
		a.emit(ctx, domain.EventCreated, c.GetID(), c)
	}
	return nil
}

func (a *DocumentAdapter[T]) reinsert(ctx context.Context, previous []T) {
	if len(previous) == 0 {
		return
	}
	out, docs, ids, err := a.prepareBatch(previous)
	if err == nil {
		err = a.insertMany(ctx, docs, ids)
	}
	if err != nil {
		slog.With(logging.StorageAttrs(string(a.Backend()), a.collection, "restore")...).
			ErrorContext(ctx, "failed to put back records after a failed restore", logging.ErrKey, err, logging.PriorityCritical())
		return
	}
	for _, c := range out {
		a.emit(ctx, domain.EventCreated, c.GetID(), c)
	}
}

func (a *DocumentAdapter[T]) Subscribe(listener domain.EventListener) func() {
	return a.hub.subscribe(listener)
}

// Ping checks the collection is reachable.
func (a *DocumentAdapter[T]) Ping(ctx context.Context) error {
	_, err := a.Count(ctx, nil)
	return err
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// StartChangeFeed opens a change stream and delivers every change, including
// those made by other processes, to subscribers until ctx is done. While the
// feed runs the adapter stops emitting its own events to avoid duplicates.
func (a *DocumentAdapter[T]) StartChangeFeed(ctx context.Context) error {
	watcher, ok := a.coll.(DocumentWatcher)
	if !ok {
		return domain.NewStorageError(a.Backend(), "watch", domain.StorageCodeUnavailable,
			errors.New("collection does not support change streams"))
	}
	stream, err := watcher.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return domain.NewStorageError(a.Backend(), "watch", domain.StorageCodeUnavailable, err)
	}

	a.feedActive.Store(true)
	go func() {
		defer a.feedActive.Store(false)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				slog.WarnContext(ctx, "failed to decode change event",
					logging.ErrKey, err, "collection", a.collection)
				continue
			}
			a.deliverChange(ctx, ev)
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "change stream stopped",
				logging.ErrKey, err, "collection", a.collection)
		}
	}()
	return nil
}

func (a *DocumentAdapter[T]) deliverChange(ctx context.Context, ev changeEvent) {
	switch ev.OperationType {
	case "insert", "update", "replace":
		typ := domain.EventUpdated
		if ev.OperationType == "insert" {
			typ = domain.EventCreated
		}
		var data any
		if ev.FullDocument != nil {
			if item, err := fromDocument[T](ev.FullDocument); err == nil {
				data = item
			}
		}
		a.hub.emit(ctx, typ, ev.DocumentKey.ID, data)
	case "delete":
		a.hub.emit(ctx, domain.EventDeleted, ev.DocumentKey.ID, nil)
	}
}
