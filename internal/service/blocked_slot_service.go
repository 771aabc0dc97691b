// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// DefaultUpcomingBlockDays is the window used by UpcomingBlocks when none is given.
const DefaultUpcomingBlockDays = 30

// BlockedSlotService manages admin-declared unavailability windows.
type BlockedSlotService struct {
	Adapter domain.Adapter[*models.BlockedTimeSlot]
	Config  ServiceConfig
}

// NewBlockedSlotService creates a new BlockedSlotService.
func NewBlockedSlotService(adapter domain.Adapter[*models.BlockedTimeSlot], config ServiceConfig) *BlockedSlotService {
	return &BlockedSlotService{Adapter: adapter, Config: config}
}

// ServiceReady checks if the service is ready for use.
func (s *BlockedSlotService) ServiceReady() bool {
	return s.Adapter != nil
}

// ValidateBlockedSlot collects every problem with the shape of slot.
func ValidateBlockedSlot(slot *models.BlockedTimeSlot) []string {
	var problems []string
	if !timeslot.ValidDate(slot.Date) {
		problems = append(problems, "date must be in YYYY-MM-DD format")
	}
	startOK, endOK := timeslot.ValidTime(slot.StartTime), timeslot.ValidTime(slot.EndTime)
	if !startOK {
		problems = append(problems, "start time must be in HH:mm format")
	}
	if !endOK {
		problems = append(problems, "end time must be in HH:mm format")
	}
	if startOK && endOK && timeslot.TimeToMinutes(slot.EndTime) <= timeslot.TimeToMinutes(slot.StartTime) {
		problems = append(problems, "Invalid time range: end time must be after start time")
	}
	return problems
}

// Create validates and stores slot, stamping createdAt when unset.
func (s *BlockedSlotService) Create(ctx context.Context, slot *models.BlockedTimeSlot) (*models.BlockedTimeSlot, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	if slot == nil {
		return nil, domain.NewValidationError("blocked slot is required")
	}
	if problems := ValidateBlockedSlot(slot); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid blocked slot", problems)
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = s.Config.now().UTC()
	}
	return s.Adapter.Create(ctx, slot)
}

// Get returns the blocked slot with id, or nil when it does not exist.
func (s *BlockedSlotService) Get(ctx context.Context, id string) (*models.BlockedTimeSlot, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	return s.Adapter.GetByID(ctx, id)
}

// GetAll lists blocked slots matching query; a nil query lists everything.
func (s *BlockedSlotService) GetAll(ctx context.Context, query *domain.Query) ([]*models.BlockedTimeSlot, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	return s.Adapter.GetAll(ctx, query)
}

// Update applies patch to the blocked slot with id. The resulting window
// must still be valid.
func (s *BlockedSlotService) Update(ctx context.Context, id string, patch domain.Patch) (*models.BlockedTimeSlot, error) {
	current, err := s.Get(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	candidate := *current
	if v, ok := patch["date"].(string); ok {
		candidate.Date = v
	}
	if v, ok := patch["startTime"].(string); ok {
		candidate.StartTime = v
	}
	if v, ok := patch["endTime"].(string); ok {
		candidate.EndTime = v
	}
	if problems := ValidateBlockedSlot(&candidate); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid blocked slot", problems)
	}
	return s.Adapter.Update(ctx, id, patch)
}

// Delete removes the blocked slot with id and reports whether it existed.
func (s *BlockedSlotService) Delete(ctx context.Context, id string) (bool, error) {
	if !s.ServiceReady() {
		return false, domain.ErrServiceUnavailable
	}
	return s.Adapter.Delete(ctx, id)
}

// GetByDate lists the blocked slots on date ordered by start time.
func (s *BlockedSlotService) GetByDate(ctx context.Context, date string) ([]*models.BlockedTimeSlot, error) {
	slots, err := s.GetAll(ctx, &domain.Query{Where: map[string]any{"date": date}})
	if err != nil {
		return nil, err
	}
	sortBlocks(slots)
	return slots, nil
}

// GetByDateRange lists the blocked slots dated within [start, end].
func (s *BlockedSlotService) GetByDateRange(ctx context.Context, start, end string) ([]*models.BlockedTimeSlot, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []*models.BlockedTimeSlot
	for _, slot := range all {
		if slot.Date >= start && slot.Date <= end {
			out = append(out, slot)
		}
	}
	sortBlocks(out)
	return out, nil
}

// IsSlotBlocked reports whether hhmm on date falls inside a blocked window.
func (s *BlockedSlotService) IsSlotBlocked(ctx context.Context, date, hhmm string) (bool, error) {
	if !timeslot.ValidTime(hhmm) {
		return false, domain.NewValidationError("time must be in HH:mm format")
	}
	slots, err := s.GetByDate(ctx, date)
	if err != nil {
		return false, err
	}
	minutes := timeslot.TimeToMinutes(hhmm)
	for _, slot := range slots {
		if minutes >= timeslot.TimeToMinutes(slot.StartTime) && minutes < timeslot.TimeToMinutes(slot.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

// IsTimeRangeBlocked reports whether [startTime, endTime) overlaps any
// blocked window on date.
func (s *BlockedSlotService) IsTimeRangeBlocked(ctx context.Context, date, startTime, endTime string) (bool, error) {
	overlapping, err := s.overlapping(ctx, date, startTime, endTime)
	if err != nil {
		return false, err
	}
	return len(overlapping) > 0, nil
}

// BlockedTime is a blocked window without its bookkeeping fields.
type BlockedTime struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Reason    string `json:"reason,omitempty"`
}

// BlockedTimesForDate lists the blocked windows on date.
func (s *BlockedSlotService) BlockedTimesForDate(ctx context.Context, date string) ([]BlockedTime, error) {
	slots, err := s.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]BlockedTime, len(slots))
	for i, slot := range slots {
		out[i] = BlockedTime{StartTime: slot.StartTime, EndTime: slot.EndTime, Reason: slot.Reason}
	}
	return out, nil
}

// BlockTimeRange blocks [startTime, endTime) on date. Overlapping an existing
// block is a conflict.
func (s *BlockedSlotService) BlockTimeRange(ctx context.Context, date, startTime, endTime, reason string) (*models.BlockedTimeSlot, error) {
	slot := &models.BlockedTimeSlot{Date: date, StartTime: startTime, EndTime: endTime, Reason: reason}
	if problems := ValidateBlockedSlot(slot); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid blocked slot", problems)
	}
	blocked, err := s.IsTimeRangeBlocked(ctx, date, startTime, endTime)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, domain.NewConflictError("Time range overlaps with existing blocked slot")
	}
	return s.Create(ctx, slot)
}

// UnblockTimeRange removes every block overlapping [startTime, endTime) on
// date and reports whether anything was removed.
func (s *BlockedSlotService) UnblockTimeRange(ctx context.Context, date, startTime, endTime string) (bool, error) {
	overlapping, err := s.overlapping(ctx, date, startTime, endTime)
	if err != nil || len(overlapping) == 0 {
		return false, err
	}
	return s.Adapter.DeleteMany(ctx, blockIDs(overlapping))
}

// BlockFullDay blocks the whole of date.
func (s *BlockedSlotService) BlockFullDay(ctx context.Context, date, reason string) (*models.BlockedTimeSlot, error) {
	if reason == "" {
		reason = models.FullDayReason
	}
	return s.BlockTimeRange(ctx, date, models.FullDayStart, models.FullDayEnd, reason)
}

// UnblockFullDay removes every block on date.
func (s *BlockedSlotService) UnblockFullDay(ctx context.Context, date string) (bool, error) {
	slots, err := s.GetByDate(ctx, date)
	if err != nil || len(slots) == 0 {
		return false, err
	}
	return s.Adapter.DeleteMany(ctx, blockIDs(slots))
}

// BlockMultipleDays blocks the same window on every date. Dates that cannot
// be blocked are logged and skipped.
func (s *BlockedSlotService) BlockMultipleDays(ctx context.Context, dates []string, startTime, endTime, reason string) ([]*models.BlockedTimeSlot, error) {
	created := make([]*models.BlockedTimeSlot, 0, len(dates))
	for _, date := range dates {
		slot, err := s.BlockTimeRange(ctx, date, startTime, endTime, reason)
		if err != nil {
			if domain.IsBackendFailure(err) {
				return created, err
			}
			slog.WarnContext(ctx, "failed to block date", "date", date, logging.ErrKey, err)
			continue
		}
		created = append(created, slot)
	}
	return created, nil
}

// BlockRecurring blocks the window on each matching weekday between the
// request's start and end dates.
func (s *BlockedSlotService) BlockRecurring(ctx context.Context, req models.RecurringBlockRequest) ([]*models.BlockedTimeSlot, error) {
	dates, err := WeekdayDates(req.StartDate, req.EndDate, req.Weekdays)
	if err != nil {
		return nil, err
	}
	return s.BlockMultipleDays(ctx, dates, req.StartTime, req.EndTime, req.Reason)
}

// CleanupExpired removes blocks dated before today and returns how many
// were removed.
func (s *BlockedSlotService) CleanupExpired(ctx context.Context) (int, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return 0, err
	}
	today := s.today()
	var expired []*models.BlockedTimeSlot
	for _, slot := range all {
		if slot.Date < today {
			expired = append(expired, slot)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if _, err := s.Adapter.DeleteMany(ctx, blockIDs(expired)); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "removed expired blocked slots", "count", len(expired))
	return len(expired), nil
}

// UpcomingBlocks lists blocks between today and days from now.
func (s *BlockedSlotService) UpcomingBlocks(ctx context.Context, days int) ([]*models.BlockedTimeSlot, error) {
	if days <= 0 {
		days = DefaultUpcomingBlockDays
	}
	now := s.Config.now().In(s.Config.location())
	return s.GetByDateRange(ctx, now.Format(timeslot.DateLayout), now.AddDate(0, 0, days).Format(timeslot.DateLayout))
}

// Statistics summarises the blocked slots.
func (s *BlockedSlotService) Statistics(ctx context.Context) (*models.BlockedSlotStatistics, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	today := s.today()
	stats := &models.BlockedSlotStatistics{ByDate: map[string]int{}}
	totalMinutes := 0
	for _, slot := range all {
		stats.Total++
		stats.ByDate[slot.Date]++
		if timeslot.ValidTime(slot.StartTime) && timeslot.ValidTime(slot.EndTime) {
			totalMinutes += timeslot.TimeToMinutes(slot.EndTime) - timeslot.TimeToMinutes(slot.StartTime)
		}
		if slot.Date < today {
			stats.Expired++
		} else {
			stats.Upcoming++
		}
	}
	stats.TotalBlockedHours = float64(totalMinutes) / 60
	if stats.Total > 0 {
		stats.AverageBlockDuration = float64(totalMinutes) / float64(stats.Total)
	}
	return stats, nil
}

// Clear removes every blocked slot.
func (s *BlockedSlotService) Clear(ctx context.Context) error {
	if !s.ServiceReady() {
		return domain.ErrServiceUnavailable
	}
	return s.Adapter.Clear(ctx)
}

func (s *BlockedSlotService) overlapping(ctx context.Context, date, startTime, endTime string) ([]*models.BlockedTimeSlot, error) {
	if !timeslot.ValidTime(startTime) || !timeslot.ValidTime(endTime) {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid time range %s-%s", startTime, endTime))
	}
	slots, err := s.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	start, end := timeslot.TimeToMinutes(startTime), timeslot.TimeToMinutes(endTime)
	var out []*models.BlockedTimeSlot
	for _, slot := range slots {
		if timeslot.Overlaps(start, end, timeslot.TimeToMinutes(slot.StartTime), timeslot.TimeToMinutes(slot.EndTime)) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *BlockedSlotService) today() string {
	return s.Config.now().In(s.Config.location()).Format(timeslot.DateLayout)
}

func blockIDs(slots []*models.BlockedTimeSlot) []string {
	ids := make([]string, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	return ids
}

func sortBlocks(slots []*models.BlockedTimeSlot) {
	slices.SortStableFunc(slots, func(a, b *models.BlockedTimeSlot) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.StartTime, b.StartTime)
	})
}
