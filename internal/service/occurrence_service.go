// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// maxOpenEndedOccurrences caps series without an end date.
const maxOpenEndedOccurrences = 520

// OccurrenceService implements [domain.OccurrenceCalculator] on top of RFC 5545
// recurrence rules.
type OccurrenceService struct {
	loc *time.Location
}

var _ domain.OccurrenceCalculator = (*OccurrenceService)(nil)

// NewOccurrenceService creates an OccurrenceService interpreting booking
// dates in loc. A nil loc means UTC.
func NewOccurrenceService(loc *time.Location) *OccurrenceService {
	if loc == nil {
		loc = time.UTC
	}
	return &OccurrenceService{loc: loc}
}

// Occurrences lists up to limit occurrences of booking from its first date.
func (s *OccurrenceService) Occurrences(booking *models.MeetingBooking, limit int) ([]models.Occurrence, error) {
	if booking == nil || limit <= 0 {
		return []models.Occurrence{}, nil
	}

	rule, start, err := s.rule(booking, limit)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return []models.Occurrence{s.occurrence(booking, start)}, nil
	}
	return s.expand(booking, rule.All()), nil
}

// OccurrencesBetween lists the occurrences starting within [from, to].
func (s *OccurrenceService) OccurrencesBetween(booking *models.MeetingBooking, from, to time.Time) ([]models.Occurrence, error) {
	if booking == nil || to.Before(from) {
		return []models.Occurrence{}, nil
	}

	rule, start, err := s.rule(booking, 0)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		if start.Before(from) || start.After(to) {
			return []models.Occurrence{}, nil
		}
		return []models.Occurrence{s.occurrence(booking, start)}, nil
	}
	return s.expand(booking, rule.Between(from, to, true)), nil
}

// SeriesEnd returns the end of the final occurrence. Recurring bookings
// without an end date have no series end.
func (s *OccurrenceService) SeriesEnd(booking *models.MeetingBooking) (*time.Time, error) {
	if booking == nil {
		return nil, nil
	}
	rule, start, err := s.rule(booking, 0)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(booking.Duration) * time.Minute
	if rule == nil {
		end := start.Add(duration)
		return &end, nil
	}
	if booking.RecurrenceEndDate == "" {
		return nil, nil
	}
	all := rule.All()
	if len(all) == 0 {
		return nil, nil
	}
	end := all[len(all)-1].Add(duration)
	return &end, nil
}

// rule returns the recurrence rule of booking, or nil for a one-off booking.
// count bounds the expansion; zero means the end date or the open-ended cap.
func (s *OccurrenceService) rule(booking *models.MeetingBooking, count int) (*rrule.RRule, time.Time, error) {
	if !timeslot.ValidDate(booking.Date) || !timeslot.ValidTime(booking.Time) {
		return nil, time.Time{}, domain.NewValidationError(fmt.Sprintf("invalid booking start %s %s", booking.Date, booking.Time))
	}
	day, _ := time.ParseInLocation(timeslot.DateLayout, booking.Date, s.loc)
	start := day.Add(time.Duration(timeslot.TimeToMinutes(booking.Time)) * time.Minute)

	opt := rrule.ROption{Dtstart: start}
	switch booking.Recurrence {
	case models.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case models.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return nil, start, nil
	}

	if booking.RecurrenceEndDate != "" {
		until, err := time.ParseInLocation(timeslot.DateLayout, booking.RecurrenceEndDate, s.loc)
		if err != nil {
			return nil, time.Time{}, domain.NewValidationError("invalid recurrence end date", err)
		}
		opt.Until = until.Add(24*time.Hour - time.Second)
	}
	switch {
	case count > 0:
		opt.Count = count
	case booking.RecurrenceEndDate == "":
		opt.Count = maxOpenEndedOccurrences
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, time.Time{}, domain.NewValidationError("invalid recurrence", err)
	}
	return rule, start, nil
}

func (s *OccurrenceService) expand(booking *models.MeetingBooking, starts []time.Time) []models.Occurrence {
	occurrences := make([]models.Occurrence, 0, len(starts))
	for _, start := range starts {
		occurrences = append(occurrences, s.occurrence(booking, start))
	}
	return occurrences
}

func (s *OccurrenceService) occurrence(booking *models.MeetingBooking, start time.Time) models.Occurrence {
	local := start.In(s.loc)
	return models.Occurrence{
		BookingID: booking.ID,
		Date:      local.Format(timeslot.DateLayout),
		Time:      local.Format("15:04"),
		StartTime: start,
		EndTime:   start.Add(time.Duration(booking.Duration) * time.Minute),
		Duration:  booking.Duration,
	}
}

// WeekdayDates lists the dates in [startDate, endDate] falling on one of
// weekdays (0 for Sunday through 6 for Saturday).
func WeekdayDates(startDate, endDate string, weekdays []int) ([]string, error) {
	start, err := time.Parse(timeslot.DateLayout, startDate)
	if err != nil {
		return nil, domain.NewValidationError("invalid start date", err)
	}
	end, err := time.Parse(timeslot.DateLayout, endDate)
	if err != nil {
		return nil, domain.NewValidationError("invalid end date", err)
	}
	if end.Before(start) {
		return nil, domain.NewValidationError("end date must not be before start date")
	}

	byweekday := make([]rrule.Weekday, 0, len(weekdays))
	for _, day := range weekdays {
		if day < 0 || day > 6 {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid weekday %d", day))
		}
		byweekday = append(byweekday, rruleWeekdays[day])
	}
	if len(byweekday) == 0 {
		return nil, domain.NewValidationError("at least one weekday is required")
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   start,
		Until:     end,
		Byweekday: byweekday,
	})
	if err != nil {
		return nil, domain.NewValidationError("invalid recurrence", err)
	}

	var dates []string
	for _, day := range rule.All() {
		dates = append(dates, day.Format(timeslot.DateLayout))
	}
	return dates, nil
}

// rruleWeekdays is indexed by Go's time.Weekday numbering.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}
