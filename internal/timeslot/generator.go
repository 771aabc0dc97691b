// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package timeslot

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

// SearchDays is how far ahead NextAvailable looks, counting from today.
const SearchDays = 30

// Generator produces slots relative to a reference location and clock.
type Generator struct {
	loc *time.Location
	now func() time.Time
}

// NewGenerator creates a generator. A nil location means UTC and a nil
// clock means time.Now.
func NewGenerator(loc *time.Location, now func() time.Time) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{loc: loc, now: now}
}

// Location returns the reference location slot times are interpreted in.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// Now returns the current time in the reference location.
func (g *Generator) Now() time.Time {
	return g.now().In(g.loc)
}

// Today returns the current date in the reference location.
func (g *Generator) Today() string {
	return g.Now().Format(DateLayout)
}

// At returns the instant of a date and HH:mm wall-clock time in the
// reference location.
func (g *Generator) At(date, hhmm string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, err
	}
	minutes := TimeToMinutes(hhmm)
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, g.loc), nil
}

// IsPast reports whether the given date and time is at or before now.
func (g *Generator) IsPast(date, hhmm string) bool {
	at, err := g.At(date, hhmm)
	if err != nil {
		return true
	}
	return !at.After(g.now())
}

// GenerateForDate lists the slots of one date. A slot is unavailable when it
// starts inside a blocked window, coincides with a scheduled booking, or is
// not strictly in the future.
func (g *Generator) GenerateForDate(date string, cfg models.AvailabilityConfig, bookings []*models.MeetingBooking, blocked []*models.BlockedTimeSlot) []models.TimeSlot {
	if !IsWorkingDay(date, cfg) || cfg.SlotDuration <= 0 {
		return nil
	}
	if !ValidTime(cfg.StartTime) || !ValidTime(cfg.EndTime) {
		return nil
	}

	booked := make(map[int]bool)
	for _, b := range bookings {
		if b.Date == date && b.IsScheduled() && ValidTime(b.Time) {
			booked[TimeToMinutes(b.Time)] = true
		}
	}

	var windows [][2]int
	for _, b := range blocked {
		if b.Date == date && ValidTime(b.StartTime) && ValidTime(b.EndTime) {
			windows = append(windows, [2]int{TimeToMinutes(b.StartTime), TimeToMinutes(b.EndTime)})
		}
	}

	start := TimeToMinutes(cfg.StartTime)
	end := TimeToMinutes(cfg.EndTime)

	var slots []models.TimeSlot
	for offset := start; offset+cfg.SlotDuration <= end; offset += cfg.SlotDuration {
		hhmm := MinutesToTime(offset)

		isBlocked := false
		for _, w := range windows {
			if offset >= w[0] && offset < w[1] {
				isBlocked = true
				break
			}
		}

		slots = append(slots, models.TimeSlot{
			ID:        models.SlotID(date, hhmm),
			Date:      date,
			Time:      hhmm,
			Available: !isBlocked && !booked[offset] && !g.IsPast(date, hhmm),
			Blocked:   isBlocked,
		})
	}
	return slots
}

// Generate lists slots for every date from start to end inclusive, omitting
// dates without slots.
func (g *Generator) Generate(start, end string, cfg models.AvailabilityConfig, bookings []*models.MeetingBooking, blocked []*models.BlockedTimeSlot) []models.DaySlots {
	from, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil
	}
	to, err := time.Parse(DateLayout, end)
	if err != nil {
		return nil
	}

	var days []models.DaySlots
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		if slots := g.GenerateForDate(date, cfg, bookings, blocked); len(slots) > 0 {
			days = append(days, models.DaySlots{Date: date, Slots: slots})
		}
	}
	return days
}

// CanAccommodateDuration reports whether a meeting of duration minutes can
// start at slot. The meeting must end no later than cfg.EndTime and must not
// overlap a scheduled booking on the same date.
func CanAccommodateDuration(slot models.TimeSlot, duration int, cfg models.AvailabilityConfig, bookings []*models.MeetingBooking) bool {
	if !slot.Available {
		return false
	}

	start := TimeToMinutes(slot.Time)
	end := start + duration
	if end > TimeToMinutes(cfg.EndTime) {
		return false
	}

	for _, b := range bookings {
		if b.Date != slot.Date || !b.IsScheduled() || !ValidTime(b.Time) {
			continue
		}
		bStart := TimeToMinutes(b.Time)
		if Overlaps(start, end, bStart, bStart+b.Duration) {
			return false
		}
	}
	return true
}

// AvailableForDuration keeps only the slots that can hold duration minutes and
// drops days left empty.
func AvailableForDuration(days []models.DaySlots, duration int, cfg models.AvailabilityConfig, bookings []*models.MeetingBooking) []models.DaySlots {
	var out []models.DaySlots
	for _, day := range days {
		var fit []models.TimeSlot
		for _, slot := range day.Slots {
			if CanAccommodateDuration(slot, duration, cfg, bookings) {
				fit = append(fit, slot)
			}
		}
		if len(fit) > 0 {
			out = append(out, models.DaySlots{Date: day.Date, Slots: fit})
		}
	}
	return out
}

// NextAvailable returns the earliest slot from today through SearchDays ahead
// that can hold duration minutes, or nil.
func (g *Generator) NextAvailable(cfg models.AvailabilityConfig, duration int, bookings []*models.MeetingBooking, blocked []*models.BlockedTimeSlot) *models.TimeSlot {
	today := g.Now()
	start := today.Format(DateLayout)
	end := today.AddDate(0, 0, SearchDays).Format(DateLayout)

	for _, day := range g.Generate(start, end, cfg, bookings, blocked) {
		for _, slot := range day.Slots {
			if CanAccommodateDuration(slot, duration, cfg, bookings) {
				return &slot
			}
		}
	}
	return nil
}
