// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package timeslot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:05", 545},
		{"9:05", 545},
		{"10:30", 630},
		{"23:59", 1439},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeToMinutes(tt.in))
		})
	}
}

func TestMinutesToTime(t *testing.T) {
	assert.Equal(t, "00:00", MinutesToTime(0))
	assert.Equal(t, "09:05", MinutesToTime(545))
	assert.Equal(t, "23:59", MinutesToTime(1439))

	for m := 0; m < 24*60; m += 7 {
		assert.Equal(t, m, TimeToMinutes(MinutesToTime(m)))
	}
}

func TestValidTime(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10:00", true},
		{"9:30", true},
		{"23:59", true},
		{"24:00", false},
		{"10:60", false},
		{"1000", false},
		{"", false},
		{"ab:cd", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidTime(tt.in))
		})
	}
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2024-06-03"))
	assert.False(t, ValidDate("2024-6-3"))
	assert.False(t, ValidDate("2024-02-30"))
	assert.False(t, ValidDate("03/06/2024"))
}

func TestIsWorkingDay(t *testing.T) {
	cfg := models.AvailabilityConfig{WorkingDays: []int{1, 2, 3, 4, 5}}

	assert.True(t, IsWorkingDay("2024-06-03", cfg), "Monday")
	assert.True(t, IsWorkingDay("2024-06-07", cfg), "Friday")
	assert.False(t, IsWorkingDay("2024-06-08", cfg), "Saturday")
	assert.False(t, IsWorkingDay("2024-06-09", cfg), "Sunday")
	assert.False(t, IsWorkingDay("not-a-date", cfg))

	sundays := models.AvailabilityConfig{WorkingDays: []int{0}}
	assert.True(t, IsWorkingDay("2024-06-09", sundays))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 int
		want           bool
	}{
		{"identical", 600, 630, 600, 630, true},
		{"partial", 600, 630, 615, 645, true},
		{"contained", 600, 660, 615, 630, true},
		{"adjacent before", 600, 630, 630, 660, false},
		{"adjacent after", 630, 660, 600, 630, false},
		{"disjoint", 600, 615, 700, 715, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.s1, tt.e1, tt.s2, tt.e2))
		})
	}
}

func TestFormatSlot(t *testing.T) {
	assert.Equal(t, "Jun 03, 2024 at 10:30 AM", FormatSlot(models.TimeSlot{Date: "2024-06-03", Time: "10:30"}))
	assert.Equal(t, "Jun 03, 2024 at 2:00 PM", FormatSlot(models.TimeSlot{Date: "2024-06-03", Time: "14:00"}))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "15 minutes", FormatDuration(15))
	assert.Equal(t, "30 minutes", FormatDuration(30))
	assert.Equal(t, "1 hour", FormatDuration(60))
	assert.Equal(t, "2 hours", FormatDuration(120))
}
