// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// TemplateType identifies which booking event a template is sent for.
type TemplateType string

const (
	TemplateConfirmation TemplateType = "confirmation"
	TemplateReminder     TemplateType = "reminder"
	TemplateCancellation TemplateType = "cancellation"
)

// TemplateTypes lists every template type.
var TemplateTypes = []TemplateType{TemplateConfirmation, TemplateReminder, TemplateCancellation}

// Valid reports whether t is a known template type.
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateConfirmation, TemplateReminder, TemplateCancellation:
		return true
	}
	return false
}

// Template length limits.
const (
	MaxTemplateSubjectLength = 200
	MaxTemplateBodyLength    = 5000
)

// EmailTemplate is a booking email with {{placeholder}} tokens.
type EmailTemplate struct {
	ID        string       `json:"id"`
	Type      TemplateType `json:"type"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Variables []string     `json:"variables"`
}

func (e *EmailTemplate) GetID() string   { return e.ID }
func (e *EmailTemplate) SetID(id string) { e.ID = id }

// TemplateVariable is a placeholder that templates may reference.
type TemplateVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TemplateVariables lists every known placeholder in display order.
var TemplateVariables = []TemplateVariable{
	{Name: "name", Description: "Attendee name"},
	{Name: "email", Description: "Attendee email"},
	{Name: "phone", Description: "Attendee phone number"},
	{Name: "date", Description: "Meeting date"},
	{Name: "time", Description: "Meeting time"},
	{Name: "duration", Description: "Meeting duration"},
	{Name: "meetingType", Description: "Meeting type (Video Call or Phone Call)"},
	{Name: "meetingLink", Description: "Video meeting link (for video calls)"},
	{Name: "phoneNumber", Description: "Phone number (for phone calls)"},
	{Name: "notes", Description: "Additional notes"},
	{Name: "bookingId", Description: "Booking ID"},
	{Name: "joinInstructions", Description: "Meeting join instructions"},
}

// TemplateValidation is the result of checking a template's placeholders.
type TemplateValidation struct {
	Valid              bool     `json:"valid"`
	UnusedVariables    []string `json:"unusedVariables"`
	UndefinedVariables []string `json:"undefinedVariables"`
}

// TemplatePreview is a template rendered with sample values.
type TemplatePreview struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateUsage describes a template for the admin overview.
type TemplateUsage struct {
	Type          TemplateType `json:"type"`
	Exists        bool         `json:"exists"`
	VariableCount int          `json:"variableCount"`
	SubjectLength int          `json:"subjectLength"`
	BodyLength    int          `json:"bodyLength"`
}

const defaultFooter = `

Best regards,
Meeting Scheduler Team

Booking ID: {{bookingId}}`

// DefaultEmailTemplates returns the templates synthesised when none are stored.
func DefaultEmailTemplates() []*EmailTemplate {
	return []*EmailTemplate{
		{
			ID:      "default-confirmation",
			Type:    TemplateConfirmation,
			Subject: "Meeting Confirmation - {{date}} at {{time}}",
			Body: `Dear {{name}},

Your meeting has been successfully scheduled!

Meeting Details:
- Date: {{date}}
- Time: {{time}} IST
- Duration: {{duration}}
- Type: {{meetingType}}

{{joinInstructions}}

If you need to reschedule or cancel this meeting, please contact us as soon as possible.` + defaultFooter,
			Variables: []string{"name", "date", "time", "duration", "meetingType", "joinInstructions", "bookingId"},
		},
		{
			ID:      "default-reminder",
			Type:    TemplateReminder,
			Subject: "Meeting Reminder - Tomorrow at {{time}}",
			Body: `Dear {{name}},

This is a friendly reminder about your upcoming meeting:

Meeting Details:
- Date: {{date}}
- Time: {{time}} IST
- Duration: {{duration}}
- Type: {{meetingType}}

{{joinInstructions}}

Please make sure you're available at the scheduled time.` + defaultFooter,
			Variables: []string{"name", "date", "time", "duration", "meetingType", "joinInstructions", "bookingId"},
		},
		{
			ID:      "default-cancellation",
			Type:    TemplateCancellation,
			Subject: "Meeting Cancelled - {{date}} at {{time}}",
			Body: `Dear {{name}},

We regret to inform you that your meeting scheduled for {{date}} at {{time}} has been cancelled.

Original Meeting Details:
- Date: {{date}}
- Time: {{time}} IST
- Duration: {{duration}}
- Type: {{meetingType}}

If you would like to reschedule, please contact us or visit our scheduling page.

We apologize for any inconvenience caused.` + defaultFooter,
			Variables: []string{"name", "date", "time", "duration", "meetingType", "bookingId"},
		},
	}
}
