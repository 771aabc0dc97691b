// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

// MockOccurrenceCalculator is a mock implementation of domain.OccurrenceCalculator
type MockOccurrenceCalculator struct {
	mock.Mock
}

func (m *MockOccurrenceCalculator) Occurrences(booking *models.MeetingBooking, limit int) ([]models.Occurrence, error) {
	args := m.Called(booking, limit)
	occurrences, _ := args.Get(0).([]models.Occurrence)
	return occurrences, args.Error(1)
}

func (m *MockOccurrenceCalculator) OccurrencesBetween(booking *models.MeetingBooking, from, to time.Time) ([]models.Occurrence, error) {
	args := m.Called(booking, from, to)
	occurrences, _ := args.Get(0).([]models.Occurrence)
	return occurrences, args.Error(1)
}

func (m *MockOccurrenceCalculator) SeriesEnd(booking *models.MeetingBooking) (*time.Time, error) {
	args := m.Called(booking)
	end, _ := args.Get(0).(*time.Time)
	return end, args.Error(1)
}
