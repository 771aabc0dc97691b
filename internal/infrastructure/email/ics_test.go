// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
}

func TestICSGenerator_BookingICS(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name        string
		loc         *time.Location
		modify      func(b *models.MeetingBooking)
		contains    []string
		notContains []string
	}{
		{
			name: "one-off video booking",
			loc:  time.UTC,
			contains: []string{
				"BEGIN:VCALENDAR",
				"METHOD:REQUEST",
				"UID:booking-1@meeting-scheduler",
				"DTSTAMP:20240601T080000Z",
				"DTSTART:20240610T143000Z",
				"DTEND:20240610T150000Z",
				"SUMMARY:Meeting with Asha Rao",
				"LOCATION:https://meet.jit.si/3mJr7AoUXx2Wqd",
				"ATTENDEE;CN=Asha Rao;RSVP=TRUE:mailto:asha@example.com",
				"STATUS:CONFIRMED",
				"END:VCALENDAR",
			},
			notContains: []string{"RRULE:"},
		},
		{
			name:     "local times converted to UTC",
			loc:      kolkata,
			contains: []string{"DTSTART:20240610T090000Z", "DTEND:20240610T093000Z"},
		},
		{
			name: "phone booking",
			loc:  time.UTC,
			modify: func(b *models.MeetingBooking) {
				b.MeetingType = models.MeetingTypePhone
				b.JoinLink = ""
				b.PhoneNumber = "+1 555 0100"
			},
			contains: []string{"LOCATION:Phone Call", "Call: +1 555 0100"},
		},
		{
			name: "weekly recurrence",
			loc:  time.UTC,
			modify: func(b *models.MeetingBooking) {
				b.Recurrence = models.RecurrenceWeekly
				b.RecurrenceEndDate = "2024-06-30"
			},
			contains: []string{"RRULE:FREQ=WEEKLY", "UNTIL=20240630T235959Z", "Recurrence: weekly"},
		},
		{
			name: "monthly recurrence without end",
			loc:  time.UTC,
			modify: func(b *models.MeetingBooking) {
				b.Recurrence = models.RecurrenceMonthly
			},
			contains:    []string{"RRULE:FREQ=MONTHLY"},
			notContains: []string{"UNTIL="},
		},
		{
			name: "cancelled booking",
			loc:  time.UTC,
			modify: func(b *models.MeetingBooking) {
				b.Status = models.StatusCancelled
			},
			contains:    []string{"METHOD:CANCEL", "STATUS:CANCELLED"},
			notContains: []string{"METHOD:REQUEST"},
		},
		{
			name: "special characters escaped",
			loc:  time.UTC,
			modify: func(b *models.MeetingBooking) {
				b.Name = "Rao, Asha; PhD"
			},
			contains: []string{`SUMMARY:Meeting with Rao\, Asha\; PhD`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := videoBooking()
			if tt.modify != nil {
				tt.modify(b)
			}
			ics, err := NewICSGenerator(tt.loc, fixedNow).BookingICS(b)
			require.NoError(t, err)

			unfolded := strings.ReplaceAll(ics, "\r\n ", "")
			for _, want := range tt.contains {
				assert.Contains(t, unfolded, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, unfolded, unwanted)
			}
			for _, line := range strings.Split(strings.TrimSuffix(ics, "\r\n"), "\r\n") {
				assert.LessOrEqual(t, len(line), ICALMaxLineLength)
			}
		})
	}
}

func TestICSGenerator_InvalidBooking(t *testing.T) {
	gen := NewICSGenerator(nil, nil)

	b := videoBooking()
	b.Time = "2:30pm"
	_, err := gen.BookingICS(b)
	assert.Error(t, err)

	b = videoBooking()
	b.Recurrence = models.RecurrenceWeekly
	b.RecurrenceEndDate = "30/06/2024"
	_, err = gen.BookingICS(b)
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "meeting-booking-1.ics", Filename(videoBooking()))
}

func TestEscapeICSText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Hello", "Hello"},
		{"comma", "a,b", `a\,b`},
		{"semicolon", "a;b", `a\;b`},
		{"newline", "a\nb", `a\nb`},
		{"backslash", `a\b`, `a\\b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeICSText(tt.input))
		})
	}
}

func TestFoldICSLine(t *testing.T) {
	t.Run("short line", func(t *testing.T) {
		input := "Short line"
		assert.Equal(t, input, foldICSLine(input, 75))
	})

	t.Run("long line", func(t *testing.T) {
		input := strings.Repeat("a", 200)
		result := foldICSLine(input, 75)

		lines := strings.Split(result, "\r\n")
		require.Greater(t, len(lines), 1)
		for i, line := range lines {
			if i > 0 {
				assert.True(t, strings.HasPrefix(line, " "))
			}
			assert.LessOrEqual(t, len(line), 75)
		}
		assert.Equal(t, input, strings.ReplaceAll(result, "\r\n ", ""))
	})

	t.Run("multibyte characters are not split", func(t *testing.T) {
		input := "DESCRIPTION:" + strings.Repeat("é", 80)
		result := foldICSLine(input, 75)

		for _, line := range strings.Split(result, "\r\n") {
			assert.True(t, strings.ToValidUTF8(line, "?") == line, "line %q is not valid UTF-8", line)
		}
		assert.Equal(t, input, strings.ReplaceAll(result, "\r\n ", ""))
	})
}
