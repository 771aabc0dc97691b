// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

// OccurrenceCalculator expands recurring bookings into their individual
// meetings.
type OccurrenceCalculator interface {
	// Occurrences lists up to limit occurrences of booking starting with the
	// booked date. A one-off booking has exactly one occurrence.
	Occurrences(booking *models.MeetingBooking, limit int) ([]models.Occurrence, error)

	// OccurrencesBetween lists the occurrences starting in [from, to].
	OccurrencesBetween(booking *models.MeetingBooking, from, to time.Time) ([]models.Occurrence, error)

	// SeriesEnd returns the end of the last occurrence, or nil when the
	// series has no end date.
	SeriesEnd(booking *models.MeetingBooking) (*time.Time, error)
}
