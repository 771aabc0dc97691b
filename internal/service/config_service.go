// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/constants"
)

// ConfigService manages the singleton scheduler configuration.
type ConfigService struct {
	Adapter domain.Adapter[*models.MeetingConfig]
}

// NewConfigService creates a new ConfigService.
func NewConfigService(adapter domain.Adapter[*models.MeetingConfig]) *ConfigService {
	return &ConfigService{Adapter: adapter}
}

// ServiceReady checks if the service is ready for use.
func (s *ConfigService) ServiceReady() bool {
	return s.Adapter != nil
}

// Get returns the stored configuration merged with the defaults. The default
// configuration is stored on first access.
func (s *ConfigService) Get(ctx context.Context) (*models.MeetingConfig, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	stored, err := s.Adapter.GetByID(ctx, models.ConfigID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		slog.DebugContext(ctx, "no configuration stored, creating defaults")
		return s.store(ctx, models.DefaultMeetingConfig())
	}
	return mergeWithDefaults(stored), nil
}

// Save validates cfg and stores it as the configuration.
func (s *ConfigService) Save(ctx context.Context, cfg *models.MeetingConfig) (*models.MeetingConfig, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	if cfg == nil {
		return nil, domain.NewValidationError("configuration is required")
	}
	if problems := ValidateConfig(cfg); len(problems) > 0 {
		slog.WarnContext(ctx, "invalid configuration", "problems", problems)
		return nil, domain.NewValidationErrors("invalid configuration", problems)
	}
	return s.store(ctx, cfg)
}

// Update deep-merges patch into the current configuration. Nothing is
// stored unless the merged configuration is valid.
func (s *ConfigService) Update(ctx context.Context, patch domain.Patch) (*models.MeetingConfig, error) {
	if _, ok := patch["id"]; ok {
		return nil, domain.NewValidationError("the configuration id cannot be changed")
	}
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	merged, err := mergePatch(current, patch)
	if err != nil {
		return nil, domain.NewValidationError("invalid configuration update", err)
	}
	return s.Save(ctx, merged)
}

// Reset replaces the configuration with the defaults.
func (s *ConfigService) Reset(ctx context.Context) (*models.MeetingConfig, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	if _, err := s.Adapter.Delete(ctx, models.ConfigID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "configuration reset to defaults")
	return s.store(ctx, models.DefaultMeetingConfig())
}

// Presets returns the named configuration presets.
func (s *ConfigService) Presets() map[string]*models.MeetingConfig {
	return models.ConfigPresets()
}

// PresetNames lists the preset names in sorted order.
func (s *ConfigService) PresetNames() []string {
	names := make([]string, 0, 4)
	for name := range models.ConfigPresets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset stores the preset called name.
func (s *ConfigService) ApplyPreset(ctx context.Context, name string) (*models.MeetingConfig, error) {
	preset, ok := models.ConfigPresets()[name]
	if !ok {
		return nil, domain.NewNotFoundError(fmt.Sprintf("preset %q not found", name))
	}
	return s.Save(ctx, preset)
}

// Export returns the current configuration as indented JSON.
func (s *ConfigService) Export(ctx context.Context) ([]byte, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// Import validates and stores a configuration exported by Export.
func (s *ConfigService) Import(ctx context.Context, data []byte) (*models.MeetingConfig, error) {
	var cfg models.MeetingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, domain.NewValidationError("failed to import configuration", err)
	}
	return s.Save(ctx, mergeWithDefaults(&cfg))
}

// store writes cfg under the singleton id, creating or replacing it.
func (s *ConfigService) store(ctx context.Context, cfg *models.MeetingConfig) (*models.MeetingConfig, error) {
	cfg = cfg.Clone()
	cfg.ID = models.ConfigID

	exists, err := s.Adapter.Exists(ctx, models.ConfigID)
	if err != nil {
		return nil, err
	}
	if !exists {
		created, err := s.Adapter.Create(ctx, cfg)
		if err != nil {
			slog.ErrorContext(ctx, "error creating configuration", logging.ErrKey, err)
			return nil, err
		}
		return created, nil
	}

	patch, err := configPatch(cfg)
	if err != nil {
		return nil, domain.NewInternalError("failed to encode configuration", err)
	}
	updated, err := s.Adapter.Update(ctx, models.ConfigID, patch)
	if err != nil {
		slog.ErrorContext(ctx, "error updating configuration", logging.ErrKey, err)
		return nil, err
	}
	if updated == nil {
		// Removed concurrently; store it afresh.
		return s.Adapter.Create(ctx, cfg)
	}
	return updated, nil
}

// ValidateConfig collects every problem with cfg.
func ValidateConfig(cfg *models.MeetingConfig) []string {
	var problems []string
	a := cfg.Availability

	startOK, endOK := timeslot.ValidTime(a.StartTime), timeslot.ValidTime(a.EndTime)
	if !startOK {
		problems = append(problems, "Invalid start time format. Use HH:mm format.")
	}
	if !endOK {
		problems = append(problems, "Invalid end time format. Use HH:mm format.")
	}
	if startOK && endOK && timeslot.TimeToMinutes(a.EndTime) <= timeslot.TimeToMinutes(a.StartTime) {
		problems = append(problems, "End time must be after start time.")
	}
	if len(a.WorkingDays) == 0 {
		problems = append(problems, "At least one working day must be selected.")
	}
	if slices.ContainsFunc(a.WorkingDays, func(d int) bool { return d < 0 || d > 6 }) {
		problems = append(problems, "Working days must be between 0 (Sunday) and 6 (Saturday).")
	}
	if a.SlotDuration < 5 || a.SlotDuration > 120 {
		problems = append(problems, "Slot duration must be between 5 and 120 minutes.")
	}
	if a.BufferTime < 0 || a.BufferTime > 60 {
		problems = append(problems, "Buffer time must be between 0 and 60 minutes.")
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("Unknown timezone %q.", a.Timezone))
		}
	}

	if len(cfg.Durations) == 0 {
		problems = append(problems, "At least one duration option must be available.")
	}
	if slices.ContainsFunc(cfg.Durations, func(d int) bool { return !models.ValidDuration(d) }) {
		problems = append(problems, "Invalid duration options. Only 15, 30, and 60 minutes are supported.")
	}
	if len(cfg.MeetingTypes) == 0 {
		problems = append(problems, "At least one meeting type must be available.")
	}
	if slices.ContainsFunc(cfg.MeetingTypes, func(t models.MeetingType) bool { return !t.Valid() }) {
		problems = append(problems, "Invalid meeting types. Only video and phone are supported.")
	}
	if cfg.ReminderHours < constants.MinReminderHours || cfg.ReminderHours > constants.MaxReminderHours {
		problems = append(problems, "Reminder hours must be between 1 and 168 (1 week).")
	}
	return problems
}

// mergeWithDefaults fills the fields missing from stored with the defaults.
func mergeWithDefaults(stored *models.MeetingConfig) *models.MeetingConfig {
	out := stored.Clone()
	def := models.DefaultMeetingConfig()

	if out.ID == "" {
		out.ID = models.ConfigID
	}
	a, d := &out.Availability, def.Availability
	if a.StartTime == "" {
		a.StartTime = d.StartTime
	}
	if a.EndTime == "" {
		a.EndTime = d.EndTime
	}
	if a.Timezone == "" {
		a.Timezone = d.Timezone
	}
	if a.WorkingDays == nil {
		a.WorkingDays = d.WorkingDays
	}
	if a.SlotDuration == 0 {
		a.SlotDuration = d.SlotDuration
	}
	if out.Durations == nil {
		out.Durations = def.Durations
	}
	if out.MeetingTypes == nil {
		out.MeetingTypes = def.MeetingTypes
	}
	if out.EmailTemplates == nil {
		out.EmailTemplates = def.EmailTemplates
	}
	if out.ReminderHours == 0 {
		out.ReminderHours = def.ReminderHours
	}
	return out
}

// mergePatch applies patch to a copy of cfg. Nested objects merge key-wise;
// every other value replaces the current one.
func mergePatch(cfg *models.MeetingConfig, patch domain.Patch) (*models.MeetingConfig, error) {
	base, err := toJSONMap(cfg)
	if err != nil {
		return nil, err
	}
	overlay, err := toJSONMap(patch)
	if err != nil {
		return nil, err
	}
	deepMerge(base, overlay)

	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out models.MeetingConfig
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func configPatch(cfg *models.MeetingConfig) (domain.Patch, error) {
	fields, err := toJSONMap(cfg)
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	// omitempty fields must still overwrite what is stored
	fields["defaultPhoneNumber"] = cfg.DefaultPhoneNumber
	return fields, nil
}

func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
