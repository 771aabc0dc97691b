// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
)

// Stores is one opened backend: an adapter per collection plus the hooks
// the factory needs to health-check and release it.
type Stores struct {
	Backend        domain.Backend
	Meetings       domain.Adapter[*models.MeetingBooking]
	Config         domain.Adapter[*models.MeetingConfig]
	BlockedSlots   domain.Adapter[*models.BlockedTimeSlot]
	EmailTemplates domain.Adapter[*models.EmailTemplate]

	// Capabilities extends the backend's default capability list.
	Capabilities []string
	Ping         func(ctx context.Context) error
	Close        func() error
}

func (s *Stores) ping(ctx context.Context) error {
	if s.Ping == nil {
		return nil
	}
	return s.Ping(ctx)
}

func (s *Stores) close() error {
	if s == nil || s.Close == nil {
		return nil
	}
	return s.Close()
}

// Opener opens the backend described by cfg.
type Opener func(ctx context.Context, cfg Config) (*Stores, error)

// kvStores builds the four collection adapters over one value store.
func kvStores(vs store.ValueStore) *Stores {
	return &Stores{
		Backend:        vs.Backend(),
		Meetings:       store.NewKeyValueAdapter[*models.MeetingBooking](domain.CollectionMeetings, vs),
		Config:         store.NewKeyValueAdapter[*models.MeetingConfig](domain.CollectionConfig, vs),
		BlockedSlots:   store.NewKeyValueAdapter[*models.BlockedTimeSlot](domain.CollectionBlockedSlots, vs),
		EmailTemplates: store.NewKeyValueAdapter[*models.EmailTemplate](domain.CollectionEmailTemplates, vs),
		Ping:           vs.Ping,
		Close:          vs.Close,
	}
}

// OpenDurable opens the SQLite file named by cfg.
func OpenDurable(ctx context.Context, cfg Config) (*Stores, error) {
	sqlite, err := store.OpenSQLite(ctx, cfg.Options.Durable.Path, cfg.Options.Durable.MaxValueBytes)
	if err != nil {
		return nil, err
	}
	return kvStores(sqlite), nil
}

// memoryStores builds unmirrored memory adapters.
func memoryStores() *Stores {
	return &Stores{
		Backend:        domain.BackendMemory,
		Meetings:       store.NewMemoryAdapter[*models.MeetingBooking](domain.CollectionMeetings),
		Config:         store.NewMemoryAdapter[*models.MeetingConfig](domain.CollectionConfig),
		BlockedSlots:   store.NewMemoryAdapter[*models.BlockedTimeSlot](domain.CollectionBlockedSlots),
		EmailTemplates: store.NewMemoryAdapter[*models.EmailTemplate](domain.CollectionEmailTemplates),
	}
}

// OpenMemory builds in-memory adapters. A persistent configuration mirrors
// them to Redis and reloads whatever the session already holds.
func OpenMemory(ctx context.Context, cfg Config) (*Stores, error) {
	if !cfg.Options.Memory.Persistent {
		return memoryStores(), nil
	}

	client, err := store.NewRedisClient(cfg.Options.Memory.RedisURL)
	if err != nil {
		return nil, domain.NewValidationError("invalid Redis URL", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.NewStorageError(domain.BackendMemory, "connect", domain.StorageCodeUnavailable, err)
	}

	mirror := store.NewRedisMirror(client, cfg.Options.Memory.SessionID, cfg.Options.Memory.SessionTTL)
	meetings := store.NewMemoryAdapter[*models.MeetingBooking](domain.CollectionMeetings, store.WithMirror(mirror))
	config := store.NewMemoryAdapter[*models.MeetingConfig](domain.CollectionConfig, store.WithMirror(mirror))
	blocked := store.NewMemoryAdapter[*models.BlockedTimeSlot](domain.CollectionBlockedSlots, store.WithMirror(mirror))
	templates := store.NewMemoryAdapter[*models.EmailTemplate](domain.CollectionEmailTemplates, store.WithMirror(mirror))

	loaders := []func(context.Context) error{
		meetings.LoadFromMirror, config.LoadFromMirror, blocked.LoadFromMirror, templates.LoadFromMirror,
	}
	for _, load := range loaders {
		if err := load(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return &Stores{
		Backend:        domain.BackendMemory,
		Meetings:       meetings,
		Config:         config,
		BlockedSlots:   blocked,
		EmailTemplates: templates,
		Capabilities:   []string{"session-mirror"},
		Ping:           mirror.Ping,
		Close:          client.Close,
	}, nil
}

// OpenNatsKV connects to NATS and binds (creating if needed) the configured bucket.
func OpenNatsKV(ctx context.Context, cfg Config) (*Stores, error) {
	opts := cfg.Options.NatsKV
	unavailable := func(op string, err error) error {
		return domain.NewStorageError(domain.BackendNatsKV, op, domain.StorageCodeUnavailable, err)
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name("lfx-v2-meeting-scheduler-store"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, unavailable("jetstream", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      opts.Bucket,
		Description: "meeting scheduler collections",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, unavailable("bind", err)
	}

	return kvStores(store.NewNatsStore(kv, opts.Bucket, nc.Close)), nil
}

// OpenCloudDocument connects to MongoDB. Change feeds are started for every
// collection when the deployment supports them and stopped on Close.
func OpenCloudDocument(ctx context.Context, cfg Config) (*Stores, error) {
	opts := cfg.Options.CloudDocument
	client, err := store.ConnectMongo(ctx, opts.URI)
	if err != nil {
		return nil, err
	}
	db := client.Database(opts.Database)

	meetings := store.NewDocumentAdapter[*models.MeetingBooking](domain.CollectionMeetings, db.Collection(domain.CollectionMeetings))
	config := store.NewDocumentAdapter[*models.MeetingConfig](domain.CollectionConfig, db.Collection(domain.CollectionConfig))
	blocked := store.NewDocumentAdapter[*models.BlockedTimeSlot](domain.CollectionBlockedSlots, db.Collection(domain.CollectionBlockedSlots))
	templates := store.NewDocumentAdapter[*models.EmailTemplate](domain.CollectionEmailTemplates, db.Collection(domain.CollectionEmailTemplates))

	feedCtx, stopFeeds := context.WithCancel(context.Background())
	feeds := []func(context.Context) error{
		meetings.StartChangeFeed, config.StartChangeFeed, blocked.StartChangeFeed, templates.StartChangeFeed,
	}
	for _, start := range feeds {
		if err := start(feedCtx); err != nil {
			slog.WarnContext(ctx, "change feed unavailable, events are limited to this process", logging.ErrKey, err)
			break
		}
	}

	return &Stores{
		Backend:        domain.BackendCloudDocument,
		Meetings:       meetings,
		Config:         config,
		BlockedSlots:   blocked,
		EmailTemplates: templates,
		Ping:           meetings.Ping,
		Close: func() error {
			stopFeeds()
			return client.Disconnect(context.Background())
		},
	}, nil
}

// defaultOpeners maps every backend to its opener.
func defaultOpeners() map[domain.Backend]Opener {
	return map[domain.Backend]Opener{
		domain.BackendDurable:       OpenDurable,
		domain.BackendMemory:        OpenMemory,
		domain.BackendNatsKV:        OpenNatsKV,
		domain.BackendCloudDocument: OpenCloudDocument,
	}
}

var errNoOpener = errors.New("no opener registered for backend")
