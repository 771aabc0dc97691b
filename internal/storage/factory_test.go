// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, ist)

func durableConfig(path string) Config {
	return Config{Backend: domain.BackendDurable, Options: Options{Durable: DurableOptions{Path: path}}}
}

func memoryConfig() Config {
	return Config{Backend: domain.BackendMemory}
}

func newTestFactory(t *testing.T, cfg Config, opts ...Option) *Factory {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithLocation(ist),
		WithFallbackPath(""),
	}, opts...)
	f := NewFactory(cfg, opts...)
	require.NoError(t, f.Initialize(context.Background()))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func booking(date, hhmm string) *models.MeetingBooking {
	return &models.MeetingBooking{
		Name:        "Asha Rao",
		Email:       "asha@example.com",
		Phone:       "+91 98765 43210",
		MeetingType: models.MeetingTypeVideo,
		Duration:    30,
		Date:        date,
		Time:        hhmm,
	}
}

// seed writes two bookings, one block and the default templates.
func seed(t *testing.T, f *Factory) {
	t.Helper()
	ctx := context.Background()
	_, err := f.Meetings().Create(ctx, booking("2024-06-03", "10:00"))
	require.NoError(t, err)
	_, err = f.Meetings().Create(ctx, booking("2024-06-04", "11:00"))
	require.NoError(t, err)
	_, err = f.BlockedSlots().BlockTimeRange(ctx, "2024-06-03", "12:00", "13:00", "Lunch")
	require.NoError(t, err)
	_, err = f.Config().Update(ctx, domain.Patch{"reminderHours": 12})
	require.NoError(t, err)
	require.NoError(t, f.EmailTemplates().EnsureDefaults(ctx))
}

// faultyMeetings overrides Count, Create and Restore of a meetings adapter.
// The first failRestores calls to Restore fail with restoreErr.
type faultyMeetings struct {
	domain.Adapter[*models.MeetingBooking]
	delay        time.Duration
	err          error
	restoreErr   error
	failRestores atomic.Int32
}

func (a *faultyMeetings) Count(ctx context.Context, q *domain.Query) (int, error) {
	time.Sleep(a.delay)
	if a.err != nil {
		return 0, a.err
	}
	return a.Adapter.Count(ctx, q)
}

func (a *faultyMeetings) Create(ctx context.Context, item *models.MeetingBooking) (*models.MeetingBooking, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.Adapter.Create(ctx, item)
}

func (a *faultyMeetings) Restore(ctx context.Context, items []*models.MeetingBooking) error {
	if a.err != nil {
		return a.err
	}
	if a.failRestores.Add(-1) >= 0 {
		return a.restoreErr
	}
	return a.Adapter.Restore(ctx, items)
}

// faultyOpener opens memory stores whose meetings adapter is replaced.
func faultyOpener(delay time.Duration, err error, closed *atomic.Int32) Opener {
	return func(ctx context.Context, cfg Config) (*Stores, error) {
		stores := memoryStores()
		stores.Meetings = &faultyMeetings{Adapter: stores.Meetings, delay: delay, err: err}
		stores.Close = func() error {
			if closed != nil {
				closed.Add(1)
			}
			return nil
		}
		return stores, nil
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "durable", cfg: durableConfig("scheduler.db")},
		{name: "durable without path", cfg: Config{Backend: domain.BackendDurable}, wantErr: true},
		{name: "memory", cfg: memoryConfig()},
		{
			name:    "persistent memory without redis",
			cfg:     Config{Backend: domain.BackendMemory, Options: Options{Memory: MemoryOptions{Persistent: true}}},
			wantErr: true,
		},
		{
			name: "nats-kv",
			cfg:  Config{Backend: domain.BackendNatsKV, Options: Options{NatsKV: NatsKVOptions{URL: "nats://localhost:4222", Bucket: "scheduler"}}},
		},
		{
			name:    "nats-kv without bucket",
			cfg:     Config{Backend: domain.BackendNatsKV, Options: Options{NatsKV: NatsKVOptions{URL: "nats://localhost:4222"}}},
			wantErr: true,
		},
		{
			name:    "cloud-document without database",
			cfg:     Config{Backend: domain.BackendCloudDocument, Options: Options{CloudDocument: CloudDocumentOptions{URI: "mongodb://localhost"}}},
			wantErr: true,
		},
		{name: "missing backend", cfg: Config{}, wantErr: true},
		{name: "unknown backend", cfg: Config{Backend: "indexeddb"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "nats-kv")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NATS_KV_BUCKET", "")
	t.Setenv("STORAGE_DURABLE_MAX_BYTES", "not-a-number")
	t.Setenv("STORAGE_MEMORY_PERSISTENT", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := ConfigFromEnv()
	assert.Equal(t, domain.BackendNatsKV, cfg.Backend)
	assert.Equal(t, "nats://nats:4222", cfg.Options.NatsKV.URL)
	assert.Equal(t, "meeting-scheduler", cfg.Options.NatsKV.Bucket)
	assert.Equal(t, DefaultDurablePath, cfg.Options.Durable.Path)
	assert.Zero(t, cfg.Options.Durable.MaxValueBytes)
	assert.True(t, cfg.Options.Memory.Persistent)
	assert.Equal(t, DefaultSessionID, cfg.Options.Memory.SessionID)
	assert.NoError(t, cfg.Validate())

	t.Setenv("STORAGE_BACKEND", "")
	assert.Equal(t, domain.BackendDurable, ConfigFromEnv().Backend)
}

func TestFactory_NotInitialized(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(memoryConfig())

	assert.False(t, f.IsReady())
	health := f.HealthCheck(ctx)
	assert.Equal(t, models.HealthUnhealthy, health.Status)
	assert.Equal(t, []string{"Storage not initialized"}, health.Errors)

	_, err := f.ExportData(ctx)
	assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))

	_, err = f.Meetings().Create(ctx, booking("2024-06-03", "10:00"))
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

	assert.Error(t, NewFactory(Config{}).Initialize(ctx))
}

func TestFactory_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t, memoryConfig())
	seed(t, f)

	require.NoError(t, f.Initialize(ctx))
	count, err := f.Meetings().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a second Initialize keeps the open backend")
}

func TestFactory_InitializeFallsBack(t *testing.T) {
	unreachable := func(context.Context, Config) (*Stores, error) {
		return nil, domain.NewStorageError(domain.BackendNatsKV, "connect", domain.StorageCodeUnavailable, errors.New("connection refused"))
	}
	natsCfg := Config{Backend: domain.BackendNatsKV, Options: Options{NatsKV: NatsKVOptions{URL: "nats://nowhere:4222", Bucket: "b"}}}

	t.Run("durable fallback file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fallback.db")
		f := newTestFactory(t, natsCfg, WithOpener(domain.BackendNatsKV, unreachable), WithFallbackPath(path))

		assert.True(t, f.IsReady())
		assert.True(t, f.UsingFallback())
		info := f.BackendInfo()
		assert.Equal(t, "durable", info.Type)
		assert.True(t, info.Fallback)

		seed(t, f)
		health := f.HealthCheck(context.Background())
		assert.Equal(t, models.HealthHealthy, health.Status)
		assert.True(t, health.Fallback)
	})

	t.Run("memory when the fallback file cannot open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing-dir", "fallback.db")
		f := newTestFactory(t, natsCfg, WithOpener(domain.BackendNatsKV, unreachable), WithFallbackPath(path))

		assert.True(t, f.UsingFallback())
		assert.Equal(t, "memory", f.BackendInfo().Type)
	})
}

func TestFactory_BackendInfo(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{name: "memory", cfg: memoryConfig(), want: []string{"fast", "temporary", "testing"}},
		{name: "durable", cfg: durableConfig(filepath.Join(t.TempDir(), "info.db")), want: []string{"offline", "local-file", "transactional"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := newTestFactory(t, tt.cfg).BackendInfo()
			assert.Equal(t, string(tt.cfg.Backend), info.Type)
			assert.Equal(t, "1.0.0", info.Version)
			assert.Equal(t, tt.want, info.Capabilities)
			assert.False(t, info.Fallback)
		})
	}

	assert.Equal(t, []string{"real-time", "distributed", "optimistic-concurrency"}, capabilities(domain.BackendNatsKV))
	assert.Equal(t, []string{"real-time", "cloud", "indexed-queries"}, capabilities(domain.BackendCloudDocument))
}

func TestFactory_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		opener     Opener
		threshold  time.Duration
		wantStatus models.HealthStatus
		wantErrors []string
	}{
		{
			name:       "healthy",
			opener:     faultyOpener(0, nil, nil),
			threshold:  time.Minute,
			wantStatus: models.HealthHealthy,
		},
		{
			name:       "slow backend is degraded",
			opener:     faultyOpener(20*time.Millisecond, nil, nil),
			threshold:  time.Millisecond,
			wantStatus: models.HealthDegraded,
			wantErrors: []string{"High latency detected"},
		},
		{
			name:       "failing backend is unhealthy",
			opener:     faultyOpener(0, domain.NewStorageError(domain.BackendMemory, "count", domain.StorageCodeReadFailed, errors.New("disk gone")), nil),
			threshold:  time.Minute,
			wantStatus: models.HealthUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFactory(t, memoryConfig(), WithOpener(domain.BackendMemory, tt.opener), WithLatencyThreshold(tt.threshold))
			health := f.HealthCheck(context.Background())
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, "memory", health.Backend)
			assert.True(t, health.CheckedAt.Equal(testNow))
			if tt.wantErrors != nil {
				assert.Equal(t, tt.wantErrors, health.Errors)
			}
			if tt.wantStatus == models.HealthUnhealthy {
				require.Len(t, health.Errors, 1)
				assert.Contains(t, health.Errors[0], "disk gone")
			}
		})
	}
}

func TestFactory_FailoverToFallback(t *testing.T) {
	ctx := context.Background()
	broken := faultyOpener(0, domain.NewStorageError(domain.BackendMemory, "create", domain.StorageCodeWriteFailed, errors.New("write failed")), nil)
	f := newTestFactory(t, memoryConfig(), WithOpener(domain.BackendMemory, broken))
	assert.False(t, f.UsingFallback())

	created, err := f.Meetings().Create(ctx, booking("2024-06-03", "10:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	stored, err := f.fallback.Meetings.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "the write landed on the fallback store")
}

func TestFactory_ExportClearImport(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t, durableConfig(filepath.Join(t.TempDir(), "scheduler.db")))
	seed(t, f)

	exported, err := f.ExportData(ctx)
	require.NoError(t, err)
	assert.Len(t, exported.Meetings, 2)
	assert.Len(t, exported.BlockedSlots, 1)
	assert.Len(t, exported.EmailTemplates, 3)
	require.NotNil(t, exported.Config)
	assert.Equal(t, 12, exported.Config.ReminderHours)
	assert.Equal(t, models.ExportMetadata{ExportedAt: testNow, Version: models.ExportVersion, Backend: "durable"}, exported.Metadata)

	require.NoError(t, f.ClearAllData(ctx))
	count, err := f.Meetings().Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, f.ImportData(ctx, exported))
	again, err := f.ExportData(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, exported.Meetings, again.Meetings)
	assert.Equal(t, exported.Config, again.Config)
	assert.ElementsMatch(t, exported.BlockedSlots, again.BlockedSlots)
	assert.ElementsMatch(t, exported.EmailTemplates, again.EmailTemplates)

	assert.Error(t, f.ImportData(ctx, nil))
}

// assertSeeded checks that f still holds what seed wrote.
func assertSeeded(t *testing.T, f *Factory) {
	t.Helper()
	data, err := f.ExportData(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Meetings, 2)
	assert.Len(t, data.BlockedSlots, 1)
	assert.Len(t, data.EmailTemplates, 3)
	require.NotNil(t, data.Config)
	assert.Equal(t, 12, data.Config.ReminderHours)
}

func TestFactory_RejectedImportKeepsData(t *testing.T) {
	dup := func() *models.MeetingBooking {
		b := booking("2024-06-05", "10:00")
		b.ID = "dup"
		return b
	}

	tests := []struct {
		name string
		data *models.StorageData
	}{
		{
			name: "repeated meeting id",
			data: &models.StorageData{Meetings: []*models.MeetingBooking{dup(), dup()}},
		},
		{
			name: "empty blocked slot",
			data: &models.StorageData{
				Meetings:     []*models.MeetingBooking{booking("2024-06-05", "10:00")},
				BlockedSlots: []*models.BlockedTimeSlot{nil},
			},
		},
		{
			name: "repeated template id",
			data: &models.StorageData{EmailTemplates: []*models.EmailTemplate{
				{ID: "tpl", Subject: "a"},
				{ID: "tpl", Subject: "b"},
			}},
		},
	}

	backends := []struct {
		name string
		cfg  func(t *testing.T) Config
	}{
		{name: "memory", cfg: func(*testing.T) Config { return memoryConfig() }},
		{name: "durable", cfg: func(t *testing.T) Config { return durableConfig(filepath.Join(t.TempDir(), "scheduler.db")) }},
	}

	for _, backend := range backends {
		for _, tt := range tests {
			t.Run(backend.name+"/"+tt.name, func(t *testing.T) {
				f := newTestFactory(t, backend.cfg(t))
				seed(t, f)

				err := f.ImportData(context.Background(), tt.data)
				require.Error(t, err)
				assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
				assertSeeded(t, f)
			})
		}
	}
}

func TestFactory_FailedImportRestoresEveryCollection(t *testing.T) {
	ctx := context.Background()
	var meetings *faultyMeetings
	opener := func(context.Context, Config) (*Stores, error) {
		stores := memoryStores()
		meetings = &faultyMeetings{Adapter: stores.Meetings, restoreErr: domain.NewConflictError("meetings are being migrated")}
		stores.Meetings = meetings
		return stores, nil
	}
	f := newTestFactory(t, memoryConfig(), WithOpener(domain.BackendMemory, opener))
	seed(t, f)
	meetings.failRestores.Store(1)

	err := f.ImportData(ctx, &models.StorageData{
		Meetings: []*models.MeetingBooking{booking("2024-06-05", "10:00")},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))
	assertSeeded(t, f)

	require.NoError(t, f.ImportData(ctx, &models.StorageData{
		Meetings: []*models.MeetingBooking{booking("2024-06-05", "10:00")},
	}))
	count, err := f.Meetings().Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFactory_SwitchDurableToMemory(t *testing.T) {
	ctx := context.Background()
	var durableCloses atomic.Int32
	durableOpener := func(ctx context.Context, cfg Config) (*Stores, error) {
		stores, err := OpenDurable(ctx, cfg)
		if err != nil {
			return nil, err
		}
		closeDB := stores.Close
		stores.Close = func() error {
			durableCloses.Add(1)
			return closeDB()
		}
		return stores, nil
	}

	f := newTestFactory(t, durableConfig(filepath.Join(t.TempDir(), "scheduler.db")), WithOpener(domain.BackendDurable, durableOpener))
	seed(t, f)
	before, err := f.ExportData(ctx)
	require.NoError(t, err)

	var events []domain.StorageEvent
	unsubscribe := f.Subscribe(domain.CollectionMeetings, func(e domain.StorageEvent) { events = append(events, e) })
	defer unsubscribe()

	require.NoError(t, f.SwitchBackend(ctx, memoryConfig()))
	assert.Equal(t, "memory", f.BackendInfo().Type)
	assert.Equal(t, domain.BackendMemory, f.StorageConfig().Backend)
	assert.Equal(t, int32(1), durableCloses.Load(), "the old backend is closed after the switch")
	assert.Empty(t, events, "the import into the new backend is not reported")

	after, err := f.ExportData(ctx)
	require.NoError(t, err)
	assert.Len(t, after.Meetings, len(before.Meetings))
	assert.Len(t, after.BlockedSlots, len(before.BlockedSlots))
	assert.Len(t, after.EmailTemplates, len(before.EmailTemplates))
	assert.Equal(t, before.Config, after.Config)

	created, err := f.Meetings().Create(ctx, booking("2024-06-05", "15:00"))
	require.NoError(t, err)
	require.Len(t, events, 1, "listeners survive the switch")
	assert.Equal(t, domain.EventCreated, events[0].Type)
	assert.Equal(t, created.ID, events[0].ID)

	unsubscribe()
	_, err = f.Meetings().Create(ctx, booking("2024-06-05", "16:00"))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFactory_SwitchFailureKeepsActiveBackend(t *testing.T) {
	ctx := context.Background()
	var closed atomic.Int32
	natsCfg := Config{Backend: domain.BackendNatsKV, Options: Options{NatsKV: NatsKVOptions{URL: "nats://localhost:4222", Bucket: "b"}}}

	tests := []struct {
		name       string
		target     Config
		opener     Opener
		wantType   domain.ErrorType
		wantClosed int32
	}{
		{
			name:     "invalid target",
			target:   Config{Backend: domain.BackendDurable},
			wantType: domain.ErrorTypeValidation,
		},
		{
			name:   "target cannot open",
			target: natsCfg,
			opener: func(context.Context, Config) (*Stores, error) {
				return nil, domain.NewStorageError(domain.BackendNatsKV, "connect", domain.StorageCodeUnavailable, errors.New("refused"))
			},
			wantType: domain.ErrorTypeUnavailable,
		},
		{
			name:       "import fails",
			target:     natsCfg,
			opener:     faultyOpener(0, domain.NewStorageError(domain.BackendNatsKV, "create", domain.StorageCodeWriteFailed, errors.New("rejected")), &closed),
			wantType:   domain.ErrorTypeInternal,
			wantClosed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed.Store(0)
			opts := []Option{}
			if tt.opener != nil {
				opts = append(opts, WithOpener(domain.BackendNatsKV, tt.opener))
			}
			f := newTestFactory(t, memoryConfig(), opts...)
			seed(t, f)

			err := f.SwitchBackend(ctx, tt.target)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, domain.GetErrorType(err))
			assert.Equal(t, tt.wantClosed, closed.Load())

			assert.Equal(t, "memory", f.BackendInfo().Type)
			count, err := f.Meetings().Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	}
}

func TestFactory_CloseReleasesBackends(t *testing.T) {
	var closed atomic.Int32
	f := NewFactory(memoryConfig(), WithFallbackPath(""), WithOpener(domain.BackendMemory, faultyOpener(0, nil, &closed)))
	require.NoError(t, f.Initialize(context.Background()))

	require.NoError(t, f.Close())
	assert.Equal(t, int32(1), closed.Load())
	assert.False(t, f.IsReady())
	assert.False(t, f.Meetings().ServiceReady())
	require.NoError(t, f.Close())
}
