// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package timeslot computes bookable slots from a working-hours configuration.
package timeslot

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

// DateLayout is the calendar date format used by every record.
const DateLayout = "2006-01-02"

var (
	timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ValidTime reports whether s is an H:mm or HH:mm wall-clock time.
func ValidTime(s string) bool {
	return timePattern.MatchString(s)
}

// ValidDate reports whether s is a real yyyy-MM-dd calendar date.
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// TimeToMinutes converts an HH:mm time into minutes since midnight.
// The input must satisfy ValidTime.
func TimeToMinutes(s string) int {
	hh, mm, _ := strings.Cut(s, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m
}

// MinutesToTime converts minutes since midnight into a zero-padded HH:mm time.
func MinutesToTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Weekday returns the weekday index of date, 0 for Sunday through 6 for Saturday.
func Weekday(date string) (int, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, err
	}
	return int(d.Weekday()), nil
}

// IsWorkingDay reports whether the weekday of date is one of cfg.WorkingDays.
func IsWorkingDay(date string, cfg models.AvailabilityConfig) bool {
	day, err := Weekday(date)
	if err != nil {
		return false
	}
	return slices.Contains(cfg.WorkingDays, day)
}

// Overlaps is the half-open interval test [s1,e1) against [s2,e2).
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && e1 > s2
}

// FormatSlot renders a slot for display, e.g. "Jun 03, 2024 at 10:30 AM".
func FormatSlot(slot models.TimeSlot) string {
	t, err := time.Parse(DateLayout+" 15:04", slot.Date+" "+MinutesToTime(TimeToMinutes(slot.Time)))
	if err != nil {
		return slot.Date + " " + slot.Time
	}
	return t.Format("Jan 02, 2006 at 3:04 PM")
}

// FormatDuration renders a duration in minutes, e.g. "30 minutes" or "1 hour".
func FormatDuration(minutes int) string {
	switch {
	case minutes == 60:
		return "1 hour"
	case minutes > 60 && minutes%60 == 0:
		return fmt.Sprintf("%d hours", minutes/60)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
