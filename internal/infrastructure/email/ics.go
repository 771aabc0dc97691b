// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// ICS constants for consistent values across all generated ICS files
const (
	ICSProdID         = "-//Linux Foundation//LFX Meeting Scheduler//EN"
	ICALVersion       = "2.0"
	ICALScale         = "GREGORIAN"
	ICALMaxLineLength = 75
	ICSContentType    = "text/calendar; charset=utf-8"
)

// ICS organizer information
const (
	OrganizerEmail = "noreply@meeting-scheduler.lfx.dev"
	OrganizerName  = "Meeting Scheduler"
)

// UTF-8 byte masks for line folding safety
const (
	UTF8TwoBitMask         = 0xC0 // Mask to isolate first two bits (11000000)
	UTF8ContinuationPrefix = 0x80 // UTF-8 continuation byte prefix (10000000)
)

const icsUTCFormat = "20060102T150405Z"

// ICSGenerator renders bookings as iCalendar documents. Booking dates and
// times are interpreted in the generator's location.
type ICSGenerator struct {
	loc *time.Location
	now func() time.Time
}

// NewICSGenerator creates a generator. A nil loc means UTC and a nil now
// means time.Now.
func NewICSGenerator(loc *time.Location, now func() time.Time) *ICSGenerator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &ICSGenerator{loc: loc, now: now}
}

// Filename is the attachment name used for b's calendar file.
func Filename(b *models.MeetingBooking) string {
	return "meeting-" + b.ID + ".ics"
}

// BookingICS renders b as a single-event calendar. Cancelled bookings are
// rendered with METHOD:CANCEL so calendar clients remove the event.
func (g *ICSGenerator) BookingICS(b *models.MeetingBooking) (string, error) {
	start, err := time.ParseInLocation(timeslot.DateLayout+" 15:04", b.Date+" "+b.Time, g.loc)
	if err != nil {
		return "", fmt.Errorf("invalid booking start %s %s: %w", b.Date, b.Time, err)
	}
	end := start.Add(time.Duration(b.Duration) * time.Minute)

	rule, err := g.recurrenceRule(b, start)
	if err != nil {
		return "", err
	}

	method, status := "REQUEST", "CONFIRMED"
	if b.Status == models.StatusCancelled {
		method, status = "CANCEL", "CANCELLED"
	}

	location := "Phone Call"
	if b.MeetingType == models.MeetingTypeVideo && b.JoinLink != "" {
		location = b.JoinLink
	}

	var ics strings.Builder
	line := func(format string, args ...any) {
		ics.WriteString(foldICSLine(fmt.Sprintf(format, args...), ICALMaxLineLength))
		ics.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:%s", ICALVersion)
	line("PRODID:%s", ICSProdID)
	line("CALSCALE:%s", ICALScale)
	line("METHOD:%s", method)
	line("BEGIN:VEVENT")
	line("UID:%s@meeting-scheduler", b.ID)
	line("DTSTAMP:%s", g.now().UTC().Format(icsUTCFormat))
	line("DTSTART:%s", start.UTC().Format(icsUTCFormat))
	line("DTEND:%s", end.UTC().Format(icsUTCFormat))
	if !b.CreatedAt.IsZero() {
		line("CREATED:%s", b.CreatedAt.UTC().Format(icsUTCFormat))
	}
	if !b.UpdatedAt.IsZero() {
		line("LAST-MODIFIED:%s", b.UpdatedAt.UTC().Format(icsUTCFormat))
	}
	line("SUMMARY:%s", escapeICSText("Meeting with "+b.Name))
	line("DESCRIPTION:%s", escapeICSText(eventDescription(b)))
	line("LOCATION:%s", escapeICSText(location))
	line("ORGANIZER;CN=%s:mailto:%s", OrganizerName, OrganizerEmail)
	line("ATTENDEE;CN=%s;RSVP=TRUE:mailto:%s", escapeICSText(b.Name), b.Email)
	line("STATUS:%s", status)
	line("TRANSP:OPAQUE")
	if rule != "" {
		line("RRULE:%s", rule)
	}
	line("END:VEVENT")
	line("END:VCALENDAR")

	return ics.String(), nil
}

// recurrenceRule builds the RRULE value for a recurring booking, or "" for a
// one-off booking. The series ends at the close of RecurrenceEndDate.
func (g *ICSGenerator) recurrenceRule(b *models.MeetingBooking, start time.Time) (string, error) {
	opt := rrule.ROption{Dtstart: start}
	switch b.Recurrence {
	case models.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case models.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return "", nil
	}

	if b.RecurrenceEndDate != "" {
		until, err := time.ParseInLocation(timeslot.DateLayout, b.RecurrenceEndDate, g.loc)
		if err != nil {
			return "", fmt.Errorf("invalid recurrence end date %q: %w", b.RecurrenceEndDate, err)
		}
		opt.Until = until.Add(24*time.Hour - time.Second)
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("invalid recurrence: %w", err)
	}
	return opt.RRuleString(), nil
}

func eventDescription(b *models.MeetingBooking) string {
	var desc strings.Builder
	desc.WriteString("Meeting Details:\n\n")
	fmt.Fprintf(&desc, "Attendee: %s\n", b.Name)
	fmt.Fprintf(&desc, "Email: %s\n", b.Email)
	fmt.Fprintf(&desc, "Phone: %s\n", b.Phone)
	fmt.Fprintf(&desc, "Duration: %d minutes\n", b.Duration)
	fmt.Fprintf(&desc, "Type: %s\n\n", b.MeetingType.Label())

	if b.MeetingType == models.MeetingTypeVideo && b.JoinLink != "" {
		fmt.Fprintf(&desc, "Join the meeting:\n%s\n\n", b.JoinLink)
	}
	if b.MeetingType == models.MeetingTypePhone && b.PhoneNumber != "" {
		fmt.Fprintf(&desc, "Call: %s\n\n", b.PhoneNumber)
	}
	if b.Notes != "" {
		fmt.Fprintf(&desc, "Notes:\n%s\n\n", b.Notes)
	}
	if b.Recurrence != "" && b.Recurrence != models.RecurrenceNone {
		fmt.Fprintf(&desc, "Recurrence: %s\n", b.Recurrence)
		if b.RecurrenceEndDate != "" {
			fmt.Fprintf(&desc, "Until: %s\n", b.RecurrenceEndDate)
		}
	}
	return strings.TrimRight(desc.String(), "\n")
}

// escapeICSText escapes special characters in ICS text fields
func escapeICSText(text string) string {
	// Escape special characters according to RFC5545
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "\n", "\\n")
	text = strings.ReplaceAll(text, ",", "\\,")
	text = strings.ReplaceAll(text, ";", "\\;")
	return text
}

// foldICSLine folds long lines according to RFC5545 (75 octets max)
func foldICSLine(line string, maxLength int) string {
	if len(line) <= maxLength {
		return line
	}

	var folded strings.Builder
	remaining := line
	first := true

	for len(remaining) > 0 {
		cutLength := maxLength
		if !first {
			cutLength = maxLength - 1 // Account for leading space on continued lines
		}

		if len(remaining) <= cutLength {
			if !first {
				folded.WriteString("\r\n ")
			}
			folded.WriteString(remaining)
			break
		}

		// Never start the next line on a UTF-8 continuation byte.
		breakPoint := cutLength
		for breakPoint > 0 && remaining[breakPoint]&UTF8TwoBitMask == UTF8ContinuationPrefix {
			breakPoint--
		}

		if !first {
			folded.WriteString("\r\n ")
		}
		folded.WriteString(remaining[:breakPoint])
		remaining = remaining[breakPoint:]
		first = false
	}

	return folded.String()
}
