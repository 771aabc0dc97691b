// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/concurrent"
)

// ExportData reads every collection of the active backend. The configuration
// is exported through the config service, so an empty store exports defaults.
func (f *Factory) ExportData(ctx context.Context) (*models.StorageData, error) {
	set, primary, err := f.current()
	if err != nil {
		return nil, err
	}
	configService := f.Config()

	data := &models.StorageData{
		Metadata: models.ExportMetadata{
			ExportedAt: f.serviceConfig.Now(),
			Version:    models.ExportVersion,
			Backend:    string(primary.Backend),
		},
	}
	err = f.pool.Run(ctx,
		func(ctx context.Context) (err error) {
			data.Meetings, err = set.meetings.GetAll(ctx, nil)
			return err
		},
		func(ctx context.Context) (err error) {
			data.Config, err = configService.Get(ctx)
			return err
		},
		func(ctx context.Context) (err error) {
			data.BlockedSlots, err = set.blockedSlots.GetAll(ctx, nil)
			return err
		},
		func(ctx context.Context) (err error) {
			data.EmailTemplates, err = set.emailTemplates.GetAll(ctx, nil)
			return err
		},
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to export storage data", logging.ErrKey, err, "backend", string(primary.Backend))
		return nil, err
	}
	return data, nil
}

// ImportData replaces every collection of the active backend with data. The
// payload is checked before anything is written. If any collection fails to
// import, every collection is put back the way it was.
func (f *Factory) ImportData(ctx context.Context, data *models.StorageData) error {
	if err := validateImport(data); err != nil {
		return err
	}

	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	set, primary, err := f.current()
	if err != nil {
		return err
	}
	previous, err := f.backupSet(ctx, set)
	if err != nil {
		return err
	}
	if err := f.importInto(ctx, set, data); err != nil {
		slog.ErrorContext(ctx, "import failed, restoring previous data",
			logging.ErrKey, err, "backend", string(primary.Backend))
		if rbErr := f.importInto(context.WithoutCancel(ctx), set, previous); rbErr != nil {
			slog.ErrorContext(ctx, "failed to restore data after a failed import",
				logging.ErrKey, rbErr, "backend", string(primary.Backend), logging.PriorityCritical())
		}
		return err
	}
	return nil
}

// validateImport rejects nil records and ids repeated within a collection.
func validateImport(data *models.StorageData) error {
	if data == nil {
		return domain.NewValidationError("import data is required")
	}
	var problems []string
	problems = append(problems, checkRecords(domain.CollectionMeetings, data.Meetings)...)
	problems = append(problems, checkRecords(domain.CollectionBlockedSlots, data.BlockedSlots)...)
	problems = append(problems, checkRecords(domain.CollectionEmailTemplates, data.EmailTemplates)...)
	if len(problems) > 0 {
		return domain.NewValidationErrors("invalid import data", problems)
	}
	return nil
}

func checkRecords[T any, P interface {
	*T
	domain.Record
}](collection string, items []P) []string {
	var problems []string
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item == nil {
			problems = append(problems, fmt.Sprintf("%s[%d] is empty", collection, i))
			continue
		}
		id := item.GetID()
		if id == "" {
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("%s: id '%s' appears more than once", collection, id))
		}
		seen[id] = true
	}
	return problems
}

// backupSet reads every collection of set as stored, without defaults.
func (f *Factory) backupSet(ctx context.Context, set adapterSet) (*models.StorageData, error) {
	data := &models.StorageData{}
	err := f.pool.Run(ctx,
		func(ctx context.Context) (err error) {
			data.Meetings, err = set.meetings.Backup(ctx)
			return err
		},
		func(ctx context.Context) error {
			configs, err := set.config.Backup(ctx)
			if err == nil && len(configs) > 0 {
				data.Config = configs[0]
			}
			return err
		},
		func(ctx context.Context) (err error) {
			data.BlockedSlots, err = set.blockedSlots.Backup(ctx)
			return err
		},
		func(ctx context.Context) (err error) {
			data.EmailTemplates, err = set.emailTemplates.Backup(ctx)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// importInto clears each collection of set and writes data into it.
func (f *Factory) importInto(ctx context.Context, set adapterSet, data *models.StorageData) error {
	return f.pool.Run(ctx,
		func(ctx context.Context) error { return set.meetings.Restore(ctx, data.Meetings) },
		func(ctx context.Context) error {
			if data.Config == nil {
				return set.config.Clear(ctx)
			}
			cfg := *data.Config
			cfg.ID = models.ConfigID
			return set.config.Restore(ctx, []*models.MeetingConfig{&cfg})
		},
		func(ctx context.Context) error { return set.blockedSlots.Restore(ctx, data.BlockedSlots) },
		func(ctx context.Context) error { return set.emailTemplates.Restore(ctx, data.EmailTemplates) },
	)
}

// ClearAllData empties every collection of the active backend. Every
// collection is attempted even when another fails.
func (f *Factory) ClearAllData(ctx context.Context) error {
	set, _, err := f.current()
	if err != nil {
		return err
	}
	return f.pool.RunAll(ctx,
		set.meetings.Clear,
		set.config.Clear,
		set.blockedSlots.Clear,
		set.emailTemplates.Clear,
	)
}

// verifyCounts checks that set holds exactly what data describes.
func (f *Factory) verifyCounts(ctx context.Context, set adapterSet, data *models.StorageData) error {
	configs := 0
	if data.Config != nil {
		configs = 1
	}
	type counter struct {
		collection string
		count      func(context.Context, *domain.Query) (int, error)
		want       int
	}
	counters := []counter{
		{domain.CollectionMeetings, set.meetings.Count, len(data.Meetings)},
		{domain.CollectionConfig, set.config.Count, configs},
		{domain.CollectionBlockedSlots, set.blockedSlots.Count, len(data.BlockedSlots)},
		{domain.CollectionEmailTemplates, set.emailTemplates.Count, len(data.EmailTemplates)},
	}
	return concurrent.Each(ctx, f.pool, counters, func(ctx context.Context, c counter) error {
		got, err := c.count(ctx, nil)
		if err != nil {
			return err
		}
		if got != c.want {
			return domain.NewInternalError(fmt.Sprintf("%s count mismatch after import: expected %d, found %d", c.collection, c.want, got))
		}
		return nil
	})
}

// SwitchBackend moves every record to the backend described by cfg. The data
// is exported from the active backend, imported into the new one and the
// counts verified before the new backend takes over and the old one is
// closed. On any failure the new backend is closed and the active one keeps
// serving.
func (f *Factory) SwitchBackend(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	data, err := f.ExportData(ctx)
	if err != nil {
		return err
	}

	from := data.Metadata.Backend
	next, err := f.open(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open storage backend for switch",
			logging.ErrKey, err, "backend", string(cfg.Backend))
		return err
	}

	abort := func(err error) error {
		slog.ErrorContext(ctx, "storage backend switch aborted",
			logging.ErrKey, err, "from", from, "to", string(cfg.Backend))
		if closeErr := next.close(); closeErr != nil {
			slog.WarnContext(ctx, "failed to close aborted backend", logging.ErrKey, closeErr)
		}
		return err
	}
	if err := f.importInto(ctx, rawSet(next), data); err != nil {
		return abort(err)
	}
	if err := f.verifyCounts(ctx, rawSet(next), data); err != nil {
		return abort(err)
	}

	f.mu.Lock()
	old := f.primary
	f.detachLocked()
	f.cfg = cfg
	f.attachLocked(next)
	f.mu.Unlock()

	if old != f.fallback {
		if err := old.close(); err != nil {
			slog.WarnContext(ctx, "failed to close previous storage backend", logging.ErrKey, err, "backend", from)
		}
	}
	slog.InfoContext(ctx, "storage backend switched",
		"from", from,
		"to", string(next.Backend),
		"meetings", len(data.Meetings),
		"blocked_slots", len(data.BlockedSlots),
		"email_templates", len(data.EmailTemplates),
	)
	return nil
}

// Subscribe registers listener for collection. Listeners stay registered
// across backend switches until the returned function is called.
func (f *Factory) Subscribe(collection string, listener domain.EventListener) func() {
	f.listenersMu.Lock()
	f.nextListener++
	id := f.nextListener
	if f.listeners[collection] == nil {
		f.listeners[collection] = make(map[uint64]domain.EventListener)
	}
	f.listeners[collection][id] = listener
	f.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.listenersMu.Lock()
			delete(f.listeners[collection], id)
			f.listenersMu.Unlock()
		})
	}
}

// relay fans an adapter event out to the factory's listeners.
func (f *Factory) relay(event domain.StorageEvent) {
	f.listenersMu.RLock()
	listeners := make([]domain.EventListener, 0, len(f.listeners[event.Collection]))
	for _, listener := range f.listeners[event.Collection] {
		listeners = append(listeners, listener)
	}
	f.listenersMu.RUnlock()

	for _, listener := range listeners {
		deliver(listener, event)
	}
}

func deliver(listener domain.EventListener, event domain.StorageEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("storage event listener panicked",
				"panic", r,
				"collection", event.Collection,
				"event_type", string(event.Type),
			)
		}
	}()
	listener(event)
}
