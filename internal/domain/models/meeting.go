// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"slices"
	"time"
)

// MeetingType is the channel a meeting is held over.
type MeetingType string

const (
	MeetingTypeVideo MeetingType = "video"
	MeetingTypePhone MeetingType = "phone"
)

// Valid reports whether t is a supported meeting type.
func (t MeetingType) Valid() bool {
	return t == MeetingTypeVideo || t == MeetingTypePhone
}

// Label is the human-readable form used in emails and calendar entries.
func (t MeetingType) Label() string {
	if t == MeetingTypePhone {
		return "Phone Call"
	}
	return "Video Call"
}

// Recurrence is the repeat pattern of a booking.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is a supported recurrence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusScheduled BookingStatus = "scheduled"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a booking in status s may move to next.
// Re-applying the current status is allowed.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusScheduled:
		return next == StatusCompleted || next == StatusCancelled
	case StatusCancelled:
		return next == StatusScheduled
	}
	return false
}

// AllowedDurations are the bookable meeting lengths in minutes.
var AllowedDurations = []int{15, 30, 60}

// ValidDuration reports whether minutes is one of [AllowedDurations].
func ValidDuration(minutes int) bool {
	return slices.Contains(AllowedDurations, minutes)
}

// MeetingBooking is a single booked meeting.
type MeetingBooking struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	Phone             string        `json:"phone"`
	MeetingType       MeetingType   `json:"meetingType"`
	Duration          int           `json:"duration"`
	Date              string        `json:"date"`
	Time              string        `json:"time"`
	Recurrence        Recurrence    `json:"recurrence"`
	RecurrenceEndDate string        `json:"recurrenceEndDate,omitempty"`
	Status            BookingStatus `json:"status"`
	JoinLink          string        `json:"joinLink,omitempty"`
	PhoneNumber       string        `json:"phoneNumber,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	ReminderSent      bool          `json:"reminderSent"`
	ConfirmationSent  bool          `json:"confirmationSent"`
}

func (m *MeetingBooking) GetID() string   { return m.ID }
func (m *MeetingBooking) SetID(id string) { m.ID = id }

// IsScheduled reports whether the booking still occupies its slot.
func (m *MeetingBooking) IsScheduled() bool {
	return m.Status == StatusScheduled
}

// BookingRequest is the booking form submission.
type BookingRequest struct {
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Phone             string      `json:"phone"`
	MeetingType       MeetingType `json:"meetingType"`
	Duration          int         `json:"duration"`
	Date              string      `json:"date"`
	Time              string      `json:"time"`
	Recurrence        Recurrence  `json:"recurrence"`
	RecurrenceEndDate string      `json:"recurrenceEndDate,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

// ToBooking converts the request into a scheduled booking.
func (r BookingRequest) ToBooking() *MeetingBooking {
	recurrence := r.Recurrence
	if recurrence == "" {
		recurrence = RecurrenceNone
	}
	return &MeetingBooking{
		Name:              r.Name,
		Email:             r.Email,
		Phone:             r.Phone,
		MeetingType:       r.MeetingType,
		Duration:          r.Duration,
		Date:              r.Date,
		Time:              r.Time,
		Recurrence:        recurrence,
		RecurrenceEndDate: r.RecurrenceEndDate,
		Notes:             r.Notes,
		Status:            StatusScheduled,
	}
}

// MeetingStatistics summarises the meetings collection.
type MeetingStatistics struct {
	Total         int                 `json:"total"`
	Scheduled     int                 `json:"scheduled"`
	Completed     int                 `json:"completed"`
	Cancelled     int                 `json:"cancelled"`
	Upcoming      int                 `json:"upcoming"`
	ByMeetingType map[MeetingType]int `json:"byMeetingType"`
	ByDuration    map[int]int         `json:"byDuration"`
	Recurring     int                 `json:"recurring"`
}
