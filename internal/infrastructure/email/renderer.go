// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/timeslot"
)

// placeholderPattern matches {{name}} tokens in templates.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Placeholders returns the distinct placeholder names used across texts, in
// order of first use.
func Placeholders(texts ...string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, text := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Substitute replaces every placeholder that has an entry in values.
// Placeholders without a value are left as they are.
func Substitute(text string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-2]
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}

// BookingValues returns the placeholder values describing b.
func BookingValues(b *models.MeetingBooking) map[string]string {
	return map[string]string{
		"name":             b.Name,
		"email":            b.Email,
		"phone":            FormatPhoneNumber(b.Phone),
		"date":             formatDate(b.Date),
		"time":             formatTime(b.Time),
		"duration":         fmt.Sprintf("%d minutes", b.Duration),
		"meetingType":      b.MeetingType.Label(),
		"meetingLink":      orDefault(b.JoinLink, "N/A"),
		"phoneNumber":      orDefault(b.PhoneNumber, "N/A"),
		"notes":            orDefault(b.Notes, "No additional notes"),
		"bookingId":        b.ID,
		"joinInstructions": JoinInstructions(b),
	}
}

// Render fills tmpl with the details of b.
func Render(tmpl *models.EmailTemplate, b *models.MeetingBooking) domain.RenderedEmail {
	values := BookingValues(b)
	return domain.RenderedEmail{
		To:      b.Email,
		Subject: Substitute(tmpl.Subject, values),
		Body:    Substitute(tmpl.Body, values),
	}
}

// JoinInstructions explains how the attendee joins the meeting.
func JoinInstructions(b *models.MeetingBooking) string {
	if b.MeetingType == models.MeetingTypePhone {
		return fmt.Sprintf(`To join the phone meeting:
1. Call: %s
2. Have your phone ready at the scheduled time
3. The host will call you at %s

Please ensure you're available at the scheduled time.`, orDefault(b.PhoneNumber, "N/A"), FormatPhoneNumber(b.Phone))
	}
	return fmt.Sprintf(`To join the video meeting:
1. Open the meeting link: %s
2. Allow camera and microphone access when prompted
3. Click "Join" to enter the meeting

Meeting ID: %s`, orDefault(b.JoinLink, "N/A"), orDefault(MeetingCode(b.JoinLink), "N/A"))
}

// FormatPhoneNumber groups Indian and ten-digit numbers for display. Other
// numbers are returned unchanged.
func FormatPhoneNumber(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case strings.HasPrefix(d, "91") && len(d) == 12:
		return "+91 " + d[2:7] + " " + d[7:]
	case len(d) == 10:
		return d[:5] + " " + d[5:]
	}
	return phone
}

func formatDate(date string) string {
	t, err := time.Parse(timeslot.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 02, 2006")
}

func formatTime(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var htmlBodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
	"nl2br": newLineToBreakLine,
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.5;">
<p>{{nl2br .}}</p>
</body>
</html>`))

// HTMLBody renders a plain-text body as a minimal HTML document.
func HTMLBody(body string) (string, error) {
	var buf bytes.Buffer
	if err := htmlBodyTemplate.Execute(&buf, body); err != nil {
		return "", fmt.Errorf("failed to render HTML body: %w", err)
	}
	return buf.String(), nil
}

// newLineToBreakLine converts newlines to HTML break tags for proper email formatting
func newLineToBreakLine(s string) template.HTML {
	escaped := template.HTMLEscapeString(s)
	replaced := strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(replaced)
}
