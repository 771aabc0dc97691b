// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// MeetingService manages meeting bookings.
type MeetingService struct {
	Adapter     domain.Adapter[*models.MeetingBooking]
	Occurrences domain.OccurrenceCalculator
	Config      ServiceConfig
}

// NewMeetingService creates a new MeetingService.
func NewMeetingService(
	adapter domain.Adapter[*models.MeetingBooking],
	occurrences domain.OccurrenceCalculator,
	config ServiceConfig,
) *MeetingService {
	return &MeetingService{
		Adapter:     adapter,
		Occurrences: occurrences,
		Config:      config,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *MeetingService) ServiceReady() bool {
	return s.Adapter != nil && s.Occurrences != nil
}

func (s *MeetingService) ready(ctx context.Context) error {
	if !s.ServiceReady() {
		slog.ErrorContext(ctx, "meeting service not initialized", logging.PriorityCritical())
		return domain.ErrServiceUnavailable
	}
	return nil
}

// ValidateBooking collects every problem with the shape of a booking.
func ValidateBooking(b *models.MeetingBooking) []string {
	var problems []string
	if strings.TrimSpace(b.Name) == "" {
		problems = append(problems, "name is required")
	}
	if _, err := mail.ParseAddress(b.Email); err != nil {
		problems = append(problems, "a valid email is required")
	}
	if strings.TrimSpace(b.Phone) == "" {
		problems = append(problems, "phone is required")
	}
	if !b.MeetingType.Valid() {
		problems = append(problems, "meeting type must be video or phone")
	}
	if !models.ValidDuration(b.Duration) {
		problems = append(problems, "duration must be 15, 30 or 60 minutes")
	}
	if !timeslot.ValidDate(b.Date) {
		problems = append(problems, "date must be in YYYY-MM-DD format")
	}
	if !timeslot.ValidTime(b.Time) {
		problems = append(problems, "time must be in HH:mm format")
	}
	if b.Recurrence != "" && !b.Recurrence.Valid() {
		problems = append(problems, "recurrence must be none, weekly or monthly")
	}
	if b.RecurrenceEndDate != "" {
		if !timeslot.ValidDate(b.RecurrenceEndDate) {
			problems = append(problems, "recurrence end date must be in YYYY-MM-DD format")
		} else if timeslot.ValidDate(b.Date) && b.RecurrenceEndDate < b.Date {
			problems = append(problems, "recurrence end date must not be before the meeting date")
		}
	}
	if b.Status != "" && !b.Status.Valid() {
		problems = append(problems, "status must be scheduled, completed or cancelled")
	}
	return problems
}

// Create validates and stores a new booking, stamping its timestamps.
func (s *MeetingService) Create(ctx context.Context, booking *models.MeetingBooking) (*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.NewValidationError("booking is required")
	}

	if booking.Recurrence == "" {
		booking.Recurrence = models.RecurrenceNone
	}
	if booking.Status == "" {
		booking.Status = models.StatusScheduled
	}
	if problems := ValidateBooking(booking); len(problems) > 0 {
		slog.WarnContext(ctx, "invalid booking", "problems", problems)
		return nil, domain.NewValidationErrors("invalid booking", problems)
	}

	now := s.Config.now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	created, err := s.Adapter.Create(ctx, booking)
	if err != nil {
		slog.ErrorContext(ctx, "error creating booking", logging.ErrKey, err)
		return nil, err
	}
	slog.DebugContext(ctx, "created booking", "booking_id", created.ID)
	return created, nil
}

// Get returns the booking with id, or nil when it does not exist.
func (s *MeetingService) Get(ctx context.Context, id string) (*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.Adapter.GetByID(ctx, id)
}

// GetAll lists bookings matching query; a nil query lists everything.
func (s *MeetingService) GetAll(ctx context.Context, query *domain.Query) ([]*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.Adapter.GetAll(ctx, query)
}

// Find lists bookings matching query.
func (s *MeetingService) Find(ctx context.Context, query domain.Query) ([]*models.MeetingBooking, error) {
	return s.GetAll(ctx, &query)
}

// Count counts bookings matching query.
func (s *MeetingService) Count(ctx context.Context, query *domain.Query) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return s.Adapter.Count(ctx, query)
}

// Exists reports whether a booking with id exists.
func (s *MeetingService) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return s.Adapter.Exists(ctx, id)
}

// Update applies patch to the booking with id and stamps updatedAt. A missing
// booking yields nil without error. The patched booking must be valid, follow
// the booking lifecycle and, while scheduled, not overlap another booking.
func (s *MeetingService) Update(ctx context.Context, id string, patch domain.Patch) (*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	current, err := s.Adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		slog.DebugContext(ctx, "booking not found for update", "booking_id", id)
		return nil, nil
	}
	next, err := PatchBooking(current, patch)
	if err != nil {
		slog.WarnContext(ctx, "invalid booking update", "booking_id", id, logging.ErrKey, err)
		return nil, err
	}
	if err := s.checkOverlap(ctx, current, next); err != nil {
		return nil, err
	}
	return s.Adapter.Update(ctx, id, withUpdatedAt(patch, s.Config.now()))
}

// PatchBooking applies patch to a copy of current and checks the result: the
// status change must be allowed and the booking must still be valid.
func PatchBooking(current *models.MeetingBooking, patch domain.Patch) (*models.MeetingBooking, error) {
	next, err := domain.ApplyPatch(current, patch)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(next.Status) {
		return nil, domain.NewValidationError(fmt.Sprintf("cannot change status from %s to %s", current.Status, next.Status))
	}
	if problems := ValidateBooking(next); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid booking", problems)
	}
	return next, nil
}

// SlotChanged reports whether next occupies a different slot than current,
// including a booking that starts occupying one again.
func SlotChanged(current, next *models.MeetingBooking) bool {
	if !next.IsScheduled() {
		return false
	}
	return !current.IsScheduled() ||
		current.Date != next.Date ||
		current.Time != next.Time ||
		current.Duration != next.Duration
}

func (s *MeetingService) checkOverlap(ctx context.Context, current, next *models.MeetingBooking) error {
	if !SlotChanged(current, next) {
		return nil
	}
	conflict, err := s.HasConflict(ctx, next.Date, next.Time, next.Duration, current.ID)
	if err != nil {
		return err
	}
	if conflict {
		return domain.NewConflictError("the requested time conflicts with an existing booking")
	}
	return nil
}

// Delete removes the booking with id and reports whether it existed.
func (s *MeetingService) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return s.Adapter.Delete(ctx, id)
}

// CreateMany validates and stores bookings as one batch.
func (s *MeetingService) CreateMany(ctx context.Context, bookings []*models.MeetingBooking) ([]*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	now := s.Config.now().UTC()
	var problems []string
	for i, b := range bookings {
		if b == nil {
			problems = append(problems, fmt.Sprintf("booking %d: booking is required", i))
			continue
		}
		if b.Recurrence == "" {
			b.Recurrence = models.RecurrenceNone
		}
		if b.Status == "" {
			b.Status = models.StatusScheduled
		}
		for _, p := range ValidateBooking(b) {
			problems = append(problems, fmt.Sprintf("booking %d: %s", i, p))
		}
		b.CreatedAt = now
		b.UpdatedAt = now
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid bookings", problems)
	}
	return s.Adapter.CreateMany(ctx, bookings)
}

// UpdateMany applies every change, stamping updatedAt. Missing ids are
// skipped. Every change is checked like [MeetingService.Update] before any is
// written.
func (s *MeetingService) UpdateMany(ctx context.Context, changes []domain.Change) ([]*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	now := s.Config.now()
	stamped := make([]domain.Change, 0, len(changes))
	for _, c := range changes {
		current, err := s.Adapter.GetByID(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			continue
		}
		next, err := PatchBooking(current, c.Patch)
		if err != nil {
			return nil, fmt.Errorf("booking %s: %w", c.ID, err)
		}
		if err := s.checkOverlap(ctx, current, next); err != nil {
			return nil, fmt.Errorf("booking %s: %w", c.ID, err)
		}
		stamped = append(stamped, domain.Change{ID: c.ID, Patch: withUpdatedAt(c.Patch, now)})
	}
	if len(stamped) == 0 {
		return []*models.MeetingBooking{}, nil
	}
	return s.Adapter.UpdateMany(ctx, stamped)
}

// DeleteMany removes ids and reports whether every one existed.
func (s *MeetingService) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	return s.Adapter.DeleteMany(ctx, ids)
}

// GetByDateRange lists bookings dated within [start, end], ordered by date.
func (s *MeetingService) GetByDateRange(ctx context.Context, start, end string) ([]*models.MeetingBooking, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []*models.MeetingBooking
	for _, b := range all {
		if b.Date >= start && b.Date <= end {
			out = append(out, b)
		}
	}
	sortByStart(out, false)
	return out, nil
}

// GetByStatus lists bookings in status.
func (s *MeetingService) GetByStatus(ctx context.Context, status models.BookingStatus) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"status": string(status)}})
}

// GetByEmail lists bookings made with email.
func (s *MeetingService) GetByEmail(ctx context.Context, email string) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"email": email}})
}

// GetByPhone lists bookings made with phone.
func (s *MeetingService) GetByPhone(ctx context.Context, phone string) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"phone": phone}})
}

// GetByDateAndTime lists bookings at exactly date and time.
func (s *MeetingService) GetByDateAndTime(ctx context.Context, date, hhmm string) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"date": date, "time": hhmm}})
}

// GetByMeetingType lists bookings of meetingType.
func (s *MeetingService) GetByMeetingType(ctx context.Context, meetingType models.MeetingType) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"meetingType": string(meetingType)}})
}

// GetByDuration lists bookings lasting minutes.
func (s *MeetingService) GetByDuration(ctx context.Context, minutes int) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{"duration": minutes}})
}

// GetRecurring lists bookings with a weekly or monthly recurrence.
func (s *MeetingService) GetRecurring(ctx context.Context) ([]*models.MeetingBooking, error) {
	return s.Find(ctx, domain.Query{Where: map[string]any{
		"recurrence": []string{string(models.RecurrenceWeekly), string(models.RecurrenceMonthly)},
	}})
}

// GetScheduled lists bookings that still occupy their slot.
func (s *MeetingService) GetScheduled(ctx context.Context) ([]*models.MeetingBooking, error) {
	return s.GetByStatus(ctx, models.StatusScheduled)
}

// GetUpcoming lists scheduled bookings starting after now, soonest first.
func (s *MeetingService) GetUpcoming(ctx context.Context) ([]*models.MeetingBooking, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	gen := s.generator()
	var out []*models.MeetingBooking
	for _, b := range all {
		if b.IsScheduled() && !gen.IsPast(b.Date, b.Time) {
			out = append(out, b)
		}
	}
	sortByStart(out, false)
	return out, nil
}

// GetPast lists bookings that started at or before now or are no longer
// scheduled, most recent first.
func (s *MeetingService) GetPast(ctx context.Context) ([]*models.MeetingBooking, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	gen := s.generator()
	var out []*models.MeetingBooking
	for _, b := range all {
		if !b.IsScheduled() || gen.IsPast(b.Date, b.Time) {
			out = append(out, b)
		}
	}
	sortByStart(out, true)
	return out, nil
}

// Search matches term case-insensitively against name, email, phone and notes.
func (s *MeetingService) Search(ctx context.Context, term string) ([]*models.MeetingBooking, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all, nil
	}
	var out []*models.MeetingBooking
	for _, b := range all {
		for _, field := range []string{b.Name, b.Email, b.Phone, b.Notes} {
			if strings.Contains(strings.ToLower(field), term) {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

// UpdateStatus moves a booking to status, enforcing the booking lifecycle.
// A missing booking yields nil without error.
func (s *MeetingService) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) (*models.MeetingBooking, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid status %q", status))
	}
	current, err := s.Get(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, domain.NewValidationError(fmt.Sprintf("cannot change status from %s to %s", current.Status, status))
	}
	if current.Status == status {
		return current, nil
	}
	return s.Update(ctx, id, domain.Patch{"status": string(status)})
}

// HasConflict reports whether [hhmm, hhmm+duration) overlaps a scheduled
// booking on date other than excludeID.
func (s *MeetingService) HasConflict(ctx context.Context, date, hhmm string, duration int, excludeID string) (bool, error) {
	if !timeslot.ValidTime(hhmm) {
		return false, domain.NewValidationError("time must be in HH:mm format")
	}
	sameDay, err := s.Find(ctx, domain.Query{Where: map[string]any{
		"date":   date,
		"status": string(models.StatusScheduled),
	}})
	if err != nil {
		return false, err
	}
	start := timeslot.TimeToMinutes(hhmm)
	end := start + duration
	for _, b := range sameDay {
		if b.ID == excludeID || !timeslot.ValidTime(b.Time) {
			continue
		}
		bStart := timeslot.TimeToMinutes(b.Time)
		if timeslot.Overlaps(start, end, bStart, bStart+b.Duration) {
			return true, nil
		}
	}
	return false, nil
}

// CancelMultiple cancels every scheduled booking in ids and returns the
// bookings that changed.
func (s *MeetingService) CancelMultiple(ctx context.Context, ids []string) ([]*models.MeetingBooking, error) {
	return s.transitionMany(ctx, ids, models.StatusCancelled)
}

// CompleteMultiple completes every scheduled booking in ids and returns the
// bookings that changed.
func (s *MeetingService) CompleteMultiple(ctx context.Context, ids []string) ([]*models.MeetingBooking, error) {
	return s.transitionMany(ctx, ids, models.StatusCompleted)
}

func (s *MeetingService) transitionMany(ctx context.Context, ids []string, status models.BookingStatus) ([]*models.MeetingBooking, error) {
	var changes []domain.Change
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil || b.Status == status || !b.Status.CanTransitionTo(status) {
			continue
		}
		changes = append(changes, domain.Change{ID: id, Patch: domain.Patch{"status": string(status)}})
	}
	if len(changes) == 0 {
		return []*models.MeetingBooking{}, nil
	}
	return s.UpdateMany(ctx, changes)
}

// Statistics summarises the bookings collection.
func (s *MeetingService) Statistics(ctx context.Context) (*models.MeetingStatistics, error) {
	all, err := s.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	gen := s.generator()
	stats := &models.MeetingStatistics{
		ByMeetingType: map[models.MeetingType]int{},
		ByDuration:    map[int]int{},
	}
	for _, b := range all {
		stats.Total++
		switch b.Status {
		case models.StatusScheduled:
			stats.Scheduled++
			if !gen.IsPast(b.Date, b.Time) {
				stats.Upcoming++
			}
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
		stats.ByMeetingType[b.MeetingType]++
		stats.ByDuration[b.Duration]++
		if b.Recurrence == models.RecurrenceWeekly || b.Recurrence == models.RecurrenceMonthly {
			stats.Recurring++
		}
	}
	return stats, nil
}

// BookingOccurrences expands the booking with id into up to limit meetings.
func (s *MeetingService) BookingOccurrences(ctx context.Context, id string, limit int) ([]models.Occurrence, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NewNotFoundError("booking not found")
	}
	return s.Occurrences.Occurrences(b, limit)
}

// Clear removes every booking.
func (s *MeetingService) Clear(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.Adapter.Clear(ctx)
}

// Backup returns every booking.
func (s *MeetingService) Backup(ctx context.Context) ([]*models.MeetingBooking, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.Adapter.Backup(ctx)
}

// Restore replaces every booking with bookings.
func (s *MeetingService) Restore(ctx context.Context, bookings []*models.MeetingBooking) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.Adapter.Restore(ctx, bookings)
}

func (s *MeetingService) generator() *timeslot.Generator {
	return timeslot.NewGenerator(s.Config.location(), s.Config.Now)
}

func withUpdatedAt(patch domain.Patch, now time.Time) domain.Patch {
	out := make(domain.Patch, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}
	out["updatedAt"] = now.UTC().Format(time.RFC3339Nano)
	return out
}

// sortByStart orders bookings by date then time.
func sortByStart(bookings []*models.MeetingBooking, descending bool) {
	slices.SortStableFunc(bookings, func(a, b *models.MeetingBooking) int {
		c := strings.Compare(a.Date, b.Date)
		if c == 0 {
			c = timeslot.TimeToMinutes(a.Time) - timeslot.TimeToMinutes(b.Time)
		}
		if descending {
			return -c
		}
		return c
	})
}
