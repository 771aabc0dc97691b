// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// JoinLinkGenerator mints video meeting links.
type JoinLinkGenerator interface {
	Generate() (string, error)
}

// BookingService orchestrates availability and the booking lifecycle on top
// of the storage-backed services.
type BookingService struct {
	Services  Services
	Sender    domain.EmailSender
	JoinLinks JoinLinkGenerator
	Config    ServiceConfig

	// mu serialises the conflict check and the write that follows it.
	mu sync.Mutex
}

// NewBookingService creates a new BookingService. A nil sender disables
// emails and a nil join link generator disables generated video links.
func NewBookingService(services Services, sender domain.EmailSender, joinLinks JoinLinkGenerator, config ServiceConfig) *BookingService {
	return &BookingService{
		Services:  services,
		Sender:    sender,
		JoinLinks: joinLinks,
		Config:    config,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *BookingService) ServiceReady() bool {
	return s.Services != nil
}

// CalendarExport is an iCalendar rendering of a booking.
type CalendarExport struct {
	Filename    string
	ContentType string
	Content     string
}

// Slots lists the slots from start to end inclusive, with blocked, booked and
// past slots marked unavailable.
func (s *BookingService) Slots(ctx context.Context, start, end string) ([]models.DaySlots, error) {
	cfg, bookings, blocked, err := s.snapshot(ctx, start, end, "")
	if err != nil {
		return nil, err
	}
	return s.generator().Generate(start, end, cfg.Availability, bookings, blocked), nil
}

// SlotsForDuration lists the available slots that can hold a meeting of
// duration minutes.
func (s *BookingService) SlotsForDuration(ctx context.Context, start, end string, duration int) ([]models.DaySlots, error) {
	if !models.ValidDuration(duration) {
		return nil, domain.NewValidationError("duration must be 15, 30 or 60 minutes")
	}
	cfg, bookings, blocked, err := s.snapshot(ctx, start, end, "")
	if err != nil {
		return nil, err
	}
	days := s.generator().Generate(start, end, cfg.Availability, bookings, blocked)
	return timeslot.AvailableForDuration(days, duration, cfg.Availability, bookings), nil
}

// NextAvailable returns the earliest slot able to hold duration minutes, or
// nil when none exists in the search window.
func (s *BookingService) NextAvailable(ctx context.Context, duration int) (*models.TimeSlot, error) {
	if !models.ValidDuration(duration) {
		return nil, domain.NewValidationError("duration must be 15, 30 or 60 minutes")
	}
	gen := s.generator()
	now := gen.Now()
	cfg, bookings, blocked, err := s.snapshot(ctx, now.Format(timeslot.DateLayout), now.AddDate(0, 0, timeslot.SearchDays).Format(timeslot.DateLayout), "")
	if err != nil {
		return nil, err
	}
	return gen.NextAvailable(cfg.Availability, duration, bookings, blocked), nil
}

// Book validates req, checks the requested slot and stores the booking. A
// confirmation email is sent afterwards; failing to send it does not fail the
// booking.
func (s *BookingService) Book(ctx context.Context, req models.BookingRequest) (*models.MeetingBooking, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	booking := req.ToBooking()
	if problems := ValidateBooking(booking); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid booking", problems)
	}

	s.mu.Lock()
	cfg, err := s.checkSlot(ctx, booking, "")
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.attachJoinDetails(booking, cfg); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	created, err := s.Services.Meetings().Create(ctx, booking)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx = logging.AppendCtx(ctx, slog.String("booking_id", created.ID))
	slog.InfoContext(ctx, "booking created", "date", created.Date, "time", created.Time)

	if s.notify(ctx, created, models.TemplateConfirmation) {
		if updated, err := s.Services.Meetings().Update(ctx, created.ID, domain.Patch{"confirmationSent": true}); err == nil && updated != nil {
			created = updated
		} else if err != nil {
			slog.WarnContext(ctx, "failed to record confirmation", logging.ErrKey, err)
		}
	}
	return created, nil
}

// Reschedule moves a scheduled booking to date and hhmm.
func (s *BookingService) Reschedule(ctx context.Context, id, date, hhmm string) (*models.MeetingBooking, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Services.Meetings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	if !current.IsScheduled() {
		return nil, domain.NewValidationError(fmt.Sprintf("cannot reschedule a %s booking", current.Status))
	}

	moved := *current
	moved.Date, moved.Time = date, hhmm
	if problems := ValidateBooking(&moved); len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid booking", problems)
	}
	if _, err := s.checkSlot(ctx, &moved, id); err != nil {
		return nil, err
	}
	return s.Services.Meetings().Update(ctx, id, domain.Patch{
		"date":         date,
		"time":         hhmm,
		"reminderSent": false,
	})
}

// Cancel cancels a booking and notifies the attendee.
func (s *BookingService) Cancel(ctx context.Context, id string) (*models.MeetingBooking, error) {
	updated, err := s.transition(ctx, id, models.StatusCancelled)
	if err != nil || updated == nil {
		return updated, err
	}
	s.notify(ctx, updated, models.TemplateCancellation)
	return updated, nil
}

// Complete marks a booking as held.
func (s *BookingService) Complete(ctx context.Context, id string) (*models.MeetingBooking, error) {
	return s.transition(ctx, id, models.StatusCompleted)
}

// Reactivate moves a cancelled booking back to scheduled, provided its slot
// could still be booked.
func (s *BookingService) Reactivate(ctx context.Context, id string) (*models.MeetingBooking, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Services.Meetings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	if current.Status == models.StatusCancelled {
		if _, err := s.checkSlot(ctx, current, id); err != nil {
			return nil, err
		}
	}
	return s.Services.Meetings().UpdateStatus(ctx, id, models.StatusScheduled)
}

// Amend applies a partial update to a booking. A change that makes the
// booking occupy a different slot goes through the same checks as a new
// booking; moving the slot resets the reminder.
func (s *BookingService) Amend(ctx context.Context, id string, patch domain.Patch) (*models.MeetingBooking, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Services.Meetings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	next, err := PatchBooking(current, patch)
	if err != nil {
		return nil, err
	}
	if SlotChanged(current, next) {
		if _, err := s.checkSlot(ctx, next, id); err != nil {
			return nil, err
		}
		if _, ok := patch["reminderSent"]; !ok && next.ReminderSent {
			patch = maps.Clone(patch)
			patch["reminderSent"] = false
		}
	}
	return s.Services.Meetings().Update(ctx, id, patch)
}

// SendReminders emails every scheduled booking starting within the
// configured reminder window that has not been reminded yet. It returns the
// number of reminders sent.
func (s *BookingService) SendReminders(ctx context.Context) (int, error) {
	if !s.ServiceReady() {
		return 0, domain.ErrServiceUnavailable
	}
	cfg, err := s.Services.Config().Get(ctx)
	if err != nil {
		return 0, err
	}
	upcoming, err := s.Services.Meetings().GetUpcoming(ctx)
	if err != nil {
		return 0, err
	}

	gen := s.generator()
	horizon := gen.Now().Add(time.Duration(cfg.ReminderHours) * time.Hour)
	sent := 0
	for _, b := range upcoming {
		if b.ReminderSent {
			continue
		}
		at, err := gen.At(b.Date, b.Time)
		if err != nil || at.After(horizon) {
			continue
		}
		if !s.notify(ctx, b, models.TemplateReminder) {
			continue
		}
		if _, err := s.Services.Meetings().Update(ctx, b.ID, domain.Patch{"reminderSent": true}); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// CalendarExport renders the booking with id as an iCalendar file.
func (s *BookingService) CalendarExport(ctx context.Context, id string) (*CalendarExport, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	b, err := s.Services.Meetings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	content, err := s.ics().BookingICS(b)
	if err != nil {
		return nil, err
	}
	return &CalendarExport{
		Filename:    email.Filename(b),
		ContentType: email.ICSContentType,
		Content:     content,
	}, nil
}

func (s *BookingService) transition(ctx context.Context, id string, status models.BookingStatus) (*models.MeetingBooking, error) {
	if !s.ServiceReady() {
		return nil, domain.ErrServiceUnavailable
	}
	updated, err := s.Services.Meetings().UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.NewNotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	return updated, nil
}

// checkSlot verifies that booking fits the configuration, is not blocked and
// does not collide with another scheduled booking. excludeID is ignored when
// looking for collisions.
func (s *BookingService) checkSlot(ctx context.Context, booking *models.MeetingBooking, excludeID string) (*models.MeetingConfig, error) {
	cfg, bookings, blocked, err := s.snapshot(ctx, booking.Date, booking.Date, excludeID)
	if err != nil {
		return nil, err
	}

	var problems []string
	if !cfg.AllowsDuration(booking.Duration) {
		problems = append(problems, fmt.Sprintf("%d minute meetings are not offered", booking.Duration))
	}
	if !cfg.AllowsMeetingType(booking.MeetingType) {
		problems = append(problems, fmt.Sprintf("%s meetings are not offered", booking.MeetingType))
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationErrors("invalid booking", problems)
	}

	var slot *models.TimeSlot
	for _, candidate := range s.generator().GenerateForDate(booking.Date, cfg.Availability, bookings, blocked) {
		if candidate.Time == booking.Time {
			slot = &candidate
			break
		}
	}
	switch {
	case slot == nil:
		return nil, domain.NewValidationError(fmt.Sprintf("%s %s is not a bookable slot", booking.Date, booking.Time))
	case slot.Blocked:
		return nil, domain.NewConflictError("the requested time is blocked")
	case !slot.Available && s.generator().IsPast(booking.Date, booking.Time):
		return nil, domain.NewValidationError("the requested time is in the past")
	}

	start := timeslot.TimeToMinutes(booking.Time)
	end := start + booking.Duration
	if end > timeslot.TimeToMinutes(cfg.Availability.EndTime) {
		return nil, domain.NewValidationError("the meeting would end after working hours")
	}
	for _, b := range blocked {
		if timeslot.Overlaps(start, end, timeslot.TimeToMinutes(b.StartTime), timeslot.TimeToMinutes(b.EndTime)) {
			return nil, domain.NewConflictError("the meeting overlaps a blocked period")
		}
	}
	if !slot.Available || !timeslot.CanAccommodateDuration(*slot, booking.Duration, cfg.Availability, bookings) {
		return nil, domain.NewConflictError("the requested time conflicts with an existing booking")
	}
	return cfg, nil
}

func (s *BookingService) attachJoinDetails(booking *models.MeetingBooking, cfg *models.MeetingConfig) error {
	switch booking.MeetingType {
	case models.MeetingTypeVideo:
		if !cfg.AutoGenerateJoinLink || s.JoinLinks == nil {
			return nil
		}
		link, err := s.JoinLinks.Generate()
		if err != nil {
			return domain.NewInternalError("failed to generate join link", err)
		}
		booking.JoinLink = link
	case models.MeetingTypePhone:
		booking.PhoneNumber = cfg.DefaultPhoneNumber
	}
	return nil
}

// notify renders and sends the template of type t for b, attaching the
// calendar entry. It reports whether the email was delivered.
func (s *BookingService) notify(ctx context.Context, b *models.MeetingBooking, t models.TemplateType) bool {
	if s.Sender == nil {
		return false
	}
	rendered, err := s.Services.EmailTemplates().Render(ctx, b, t)
	if err != nil {
		slog.WarnContext(ctx, "failed to render email", "template", t, logging.ErrKey, err)
		return false
	}
	if content, err := s.ics().BookingICS(b); err == nil {
		rendered.ICSAttachment = &domain.EmailAttachment{
			Filename:    email.Filename(b),
			ContentType: email.ICSContentType,
			Content:     base64.StdEncoding.EncodeToString([]byte(content)),
		}
	} else {
		slog.WarnContext(ctx, "failed to build calendar attachment", logging.ErrKey, err)
	}
	if err := s.Sender.Send(ctx, rendered); err != nil {
		slog.ErrorContext(ctx, "failed to send email", "template", t, logging.ErrKey, err)
		return false
	}
	return true
}

// snapshot loads the configuration and the scheduled bookings and blocks
// dated between start and end.
func (s *BookingService) snapshot(ctx context.Context, start, end, excludeID string) (*models.MeetingConfig, []*models.MeetingBooking, []*models.BlockedTimeSlot, error) {
	if !s.ServiceReady() {
		return nil, nil, nil, domain.ErrServiceUnavailable
	}
	if !timeslot.ValidDate(start) || !timeslot.ValidDate(end) {
		return nil, nil, nil, domain.NewValidationError("dates must be in YYYY-MM-DD format")
	}
	if end < start {
		return nil, nil, nil, domain.NewValidationError("end date must not be before start date")
	}
	cfg, err := s.Services.Config().Get(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	inRange, err := s.Services.Meetings().GetByDateRange(ctx, start, end)
	if err != nil {
		return nil, nil, nil, err
	}
	bookings := make([]*models.MeetingBooking, 0, len(inRange))
	for _, b := range inRange {
		if b.ID != excludeID && b.IsScheduled() {
			bookings = append(bookings, b)
		}
	}
	blocked, err := s.Services.BlockedSlots().GetByDateRange(ctx, start, end)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, bookings, blocked, nil
}

func (s *BookingService) generator() *timeslot.Generator {
	return timeslot.NewGenerator(s.Config.location(), s.Config.Now)
}

func (s *BookingService) ics() *email.ICSGenerator {
	return email.NewICSGenerator(s.Config.location(), s.Config.Now)
}
