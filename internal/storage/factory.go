// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package storage selects, opens and swaps the storage backend behind the
// scheduler's services.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/concurrent"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/constants"
)

// backendVersion is reported by BackendInfo for every backend.
const backendVersion = "1.0.0"

// Factory owns the active storage backend and the services built on it.
// Services are rebuilt whenever the backend changes, so callers should look
// them up per operation.
type Factory struct {
	openers          map[domain.Backend]Opener
	fallbackPath     string
	serviceConfig    service.ServiceConfig
	latencyThreshold time.Duration
	pool             *concurrent.WorkerPool

	// switchMu serialises backend switches and imports; mu guards everything
	// below it.
	switchMu sync.Mutex

	mu          sync.RWMutex
	cfg         Config
	initialized bool
	primary     *Stores
	fallback    *Stores
	active      adapterSet
	relays      []func()

	meetings       *service.MeetingService
	config         *service.ConfigService
	blockedSlots   *service.BlockedSlotService
	emailTemplates *service.EmailTemplateService

	listenersMu  sync.RWMutex
	listeners    map[string]map[uint64]domain.EventListener
	nextListener uint64
}

var _ service.Services = (*Factory)(nil)

// Option configures a [Factory].
type Option func(*Factory)

// WithClock sets the clock used by the services and export metadata.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.serviceConfig.Now = now }
}

// WithLocation sets the reference timezone of the services.
func WithLocation(loc *time.Location) Option {
	return func(f *Factory) { f.serviceConfig.Location = loc }
}

// WithFallbackPath sets the SQLite file used when the configured backend
// cannot serve. An empty path falls back to memory.
func WithFallbackPath(path string) Option {
	return func(f *Factory) { f.fallbackPath = path }
}

// WithOpener replaces the opener for backend.
func WithOpener(backend domain.Backend, opener Opener) Option {
	return func(f *Factory) { f.openers[backend] = opener }
}

// WithLatencyThreshold sets the health check latency above which storage is degraded.
func WithLatencyThreshold(d time.Duration) Option {
	return func(f *Factory) { f.latencyThreshold = d }
}

// NewFactory creates a factory for cfg. Nothing is opened until Initialize.
func NewFactory(cfg Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:              cfg,
		openers:          defaultOpeners(),
		fallbackPath:     DefaultFallbackPath,
		serviceConfig:    service.DefaultServiceConfig(),
		latencyThreshold: constants.HealthLatencyThresholdMillis * time.Millisecond,
		pool:             concurrent.NewWorkerPool(len(domain.Collections)),
		listeners:        make(map[string]map[uint64]domain.EventListener),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.buildServices(adapterSet{})
	return f
}

// adapterSet is one adapter per collection.
type adapterSet struct {
	meetings       domain.Adapter[*models.MeetingBooking]
	config         domain.Adapter[*models.MeetingConfig]
	blockedSlots   domain.Adapter[*models.BlockedTimeSlot]
	emailTemplates domain.Adapter[*models.EmailTemplate]
}

func rawSet(s *Stores) adapterSet {
	return adapterSet{
		meetings:       s.Meetings,
		config:         s.Config,
		blockedSlots:   s.BlockedSlots,
		emailTemplates: s.EmailTemplates,
	}
}

func withFailover[T domain.Record](primary, fallback domain.Adapter[T]) domain.Adapter[T] {
	return store.NewFailoverAdapter(primary, fallback)
}

// failoverSet wraps primary's adapters so backend failures retry on fallback.
func failoverSet(primary, fallback *Stores) adapterSet {
	if fallback == nil || fallback == primary {
		return rawSet(primary)
	}
	return adapterSet{
		meetings:       withFailover(primary.Meetings, fallback.Meetings),
		config:         withFailover(primary.Config, fallback.Config),
		blockedSlots:   withFailover(primary.BlockedSlots, fallback.BlockedSlots),
		emailTemplates: withFailover(primary.EmailTemplates, fallback.EmailTemplates),
	}
}

func (f *Factory) buildServices(set adapterSet) {
	f.meetings = service.NewMeetingService(set.meetings, service.NewOccurrenceService(f.serviceConfig.Location), f.serviceConfig)
	f.config = service.NewConfigService(set.config)
	f.blockedSlots = service.NewBlockedSlotService(set.blockedSlots, f.serviceConfig)
	f.emailTemplates = service.NewEmailTemplateService(set.emailTemplates)
}

func (f *Factory) open(ctx context.Context, cfg Config) (*Stores, error) {
	opener, ok := f.openers[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoOpener, cfg.Backend)
	}
	return opener(ctx, cfg)
}

// openFallback opens the fallback SQLite file, or memory adapters when that fails.
func (f *Factory) openFallback(ctx context.Context) *Stores {
	if f.fallbackPath != "" {
		cfg := Config{Backend: domain.BackendDurable, Options: Options{Durable: DurableOptions{Path: f.fallbackPath}}}
		stores, err := f.open(ctx, cfg)
		if err == nil {
			return stores
		}
		slog.WarnContext(ctx, "failed to open fallback storage, using memory",
			logging.ErrKey, err, "path", f.fallbackPath)
	}
	return memoryStores()
}

// Initialize opens the configured backend. When it cannot be opened the
// failure is logged and the fallback store serves instead. Calling it again
// after success is a no-op.
func (f *Factory) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}
	if err := f.cfg.Validate(); err != nil {
		return err
	}

	f.fallback = f.openFallback(ctx)
	primary, err := f.open(ctx, f.cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open storage backend, using fallback",
			logging.ErrKey, err,
			"backend", string(f.cfg.Backend),
			"fallback_backend", string(f.fallback.Backend),
		)
		primary = f.fallback
	}

	f.attachLocked(primary)
	f.initialized = true
	slog.InfoContext(ctx, "storage initialized",
		"backend", string(primary.Backend),
		"fallback", primary == f.fallback,
	)
	return nil
}

// attachLocked makes primary the active backend. f.mu must be held.
func (f *Factory) attachLocked(primary *Stores) {
	f.primary = primary
	f.active = failoverSet(primary, f.fallback)
	f.buildServices(f.active)
	f.relays = []func(){
		f.active.meetings.Subscribe(f.relay),
		f.active.config.Subscribe(f.relay),
		f.active.blockedSlots.Subscribe(f.relay),
		f.active.emailTemplates.Subscribe(f.relay),
	}
}

func (f *Factory) detachLocked() {
	for _, unsubscribe := range f.relays {
		unsubscribe()
	}
	f.relays = nil
}

// IsReady reports whether Initialize has completed.
func (f *Factory) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized
}

// UsingFallback reports whether the fallback store is serving in place of the
// configured backend.
func (f *Factory) UsingFallback() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized && f.primary == f.fallback
}

// StorageConfig returns the configuration of the active backend.
func (f *Factory) StorageConfig() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

func (f *Factory) Meetings() *service.MeetingService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.meetings
}

func (f *Factory) Config() *service.ConfigService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config
}

func (f *Factory) BlockedSlots() *service.BlockedSlotService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.blockedSlots
}

func (f *Factory) EmailTemplates() *service.EmailTemplateService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.emailTemplates
}

// current returns the active adapters, or an unavailable error before Initialize.
func (f *Factory) current() (adapterSet, *Stores, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.initialized {
		return adapterSet{}, nil, domain.NewUnavailableError("storage not initialized")
	}
	return f.active, f.primary, nil
}

func capabilities(backend domain.Backend) []string {
	switch backend {
	case domain.BackendDurable:
		return []string{"offline", "local-file", "transactional"}
	case domain.BackendMemory:
		return []string{"fast", "temporary", "testing"}
	case domain.BackendNatsKV:
		return []string{"real-time", "distributed", "optimistic-concurrency"}
	case domain.BackendCloudDocument:
		return []string{"real-time", "cloud", "indexed-queries"}
	}
	return nil
}

// BackendInfo describes the backend currently serving requests.
func (f *Factory) BackendInfo() models.BackendInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	backend := f.cfg.Backend
	var extra []string
	if f.primary != nil {
		backend = f.primary.Backend
		extra = f.primary.Capabilities
	}
	return models.BackendInfo{
		Type:         string(backend),
		Version:      backendVersion,
		Capabilities: append(capabilities(backend), extra...),
		Fallback:     f.initialized && f.primary == f.fallback,
	}
}

// HealthCheck counts the meetings on the active backend and reports how long
// it took. The check is timed, not bounded.
func (f *Factory) HealthCheck(ctx context.Context) models.StorageHealth {
	f.mu.RLock()
	primary, initialized, backend := f.primary, f.initialized, f.cfg.Backend
	fallback := initialized && f.primary == f.fallback
	f.mu.RUnlock()

	health := models.StorageHealth{
		Status:    models.HealthHealthy,
		Backend:   string(backend),
		Fallback:  fallback,
		CheckedAt: f.serviceConfig.Now(),
	}
	if !initialized {
		health.Status = models.HealthUnhealthy
		health.Errors = []string{"Storage not initialized"}
		return health
	}
	health.Backend = string(primary.Backend)

	start := time.Now()
	_, err := primary.Meetings.Count(ctx, nil)
	elapsed := time.Since(start)
	health.Latency = elapsed.Milliseconds()

	if err != nil {
		slog.ErrorContext(ctx, "storage health check failed", logging.ErrKey, err, "backend", health.Backend)
		health.Status = models.HealthUnhealthy
		health.Errors = append(health.Errors, err.Error())
	}
	if elapsed > f.latencyThreshold {
		if health.Status == models.HealthHealthy {
			health.Status = models.HealthDegraded
		}
		health.Errors = append(health.Errors, "High latency detected")
	}
	return health
}

// Close releases every open backend. The factory must be initialised again
// before further use.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return nil
	}
	f.detachLocked()

	var errs []error
	if f.primary != f.fallback {
		errs = append(errs, f.primary.close())
	}
	errs = append(errs, f.fallback.close())

	f.primary, f.fallback = nil, nil
	f.active = adapterSet{}
	f.buildServices(adapterSet{})
	f.initialized = false
	return errors.Join(errs...)
}
